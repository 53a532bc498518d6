package store

import (
	"database/sql"
	"fmt"
)

// sqlNullUint64 scans a nullable INTEGER column into an optional uint64,
// mirroring the sql.NullInt64 shape the rest of this package already uses.
type sqlNullUint64 struct {
	Value uint64
	Valid bool
}

func (n *sqlNullUint64) Scan(src any) error {
	if src == nil {
		n.Value, n.Valid = 0, false
		return nil
	}
	switch v := src.(type) {
	case int64:
		n.Value, n.Valid = uint64(v), true
	default:
		return fmt.Errorf("sqlNullUint64: unsupported scan type %T", src)
	}
	return nil
}

func (n sqlNullUint64) Ptr() *uint64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

var _ sql.Scanner = (*sqlNullUint64)(nil)
