package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/campusgate/gatepass/internal/model"
)

// PassFilter narrows query_passes. Zero-value fields are not applied.
type PassFilter struct {
	SubjectID *uint64
	Direction model.Direction
	State     model.State
}

// QueryPasses lists pass requests matching filter, newest-request-first,
// capped at limit rows.
func (s *Store) QueryPasses(ctx context.Context, filter PassFilter, limit int) ([]model.PassRequest, error) {
	where, args := buildPassFilter(filter)
	q := passSelectColumns + ` FROM pass_requests` + where + ` ORDER BY request_time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	var out []model.PassRequest
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func buildPassFilter(f PassFilter) (string, []any) {
	var conds []string
	var args []any

	if f.SubjectID != nil {
		conds = append(conds, "subject_id = ?")
		args = append(args, *f.SubjectID)
	}
	if f.Direction != "" {
		conds = append(conds, "direction = ?")
		args = append(args, f.Direction)
	}
	if f.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, f.State)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// FindIdempotentDaily locates a pending or approved daily pass already on
// file for (subject, direction) within [dayStart, dayEnd), implementing the
// structured (subject, direction, civil-date) idempotency key daily()
// requires. The most recently requested match wins if more than one exists.
func (s *Store) FindIdempotentDaily(ctx context.Context, subjectID uint64, direction model.Direction, dayStart, dayEnd time.Time) (model.PassRequest, error) {
	row := s.db.QueryRowContext(ctx, passSelectColumns+`
		FROM pass_requests
		WHERE subject_id = ? AND direction = ? AND state IN ('pending', 'approved')
		  AND request_time >= ? AND request_time < ?
		ORDER BY request_time DESC LIMIT 1`,
		subjectID, direction, dayStart, dayEnd)
	return scanPass(row)
}

// ScanFilter narrows query_scans. Zero-value fields are not applied.
type ScanFilter struct {
	SubjectID     *uint64
	Direction     model.Direction
	Result        model.ScanResult
	SubjectCodeLike string
	From, To      *time.Time
}

// QueryScans lists scan log records matching filter, reverse-chronological,
// capped at limit rows. SubjectCodeLike requires a join against principals.
func (s *Store) QueryScans(ctx context.Context, filter ScanFilter, limit int) ([]model.ScanLog, error) {
	var conds []string
	var args []any
	from := `FROM scan_logs sl`

	if filter.SubjectCodeLike != "" {
		from = `FROM scan_logs sl JOIN principals p ON p.id = sl.subject_id`
		conds = append(conds, "p.subject_code LIKE ?")
		args = append(args, "%"+filter.SubjectCodeLike+"%")
	}
	if filter.SubjectID != nil {
		conds = append(conds, "sl.subject_id = ?")
		args = append(args, *filter.SubjectID)
	}
	if filter.Direction != "" {
		conds = append(conds, "sl.direction = ?")
		args = append(args, filter.Direction)
	}
	if filter.Result != "" {
		conds = append(conds, "sl.result = ?")
		args = append(args, filter.Result)
	}
	if filter.From != nil {
		conds = append(conds, "sl.timestamp >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conds = append(conds, "sl.timestamp < ?")
		args = append(args, *filter.To)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	q := `SELECT sl.id, sl.pass_id, sl.subject_id, sl.scanner_id, sl.direction, sl.result, sl.detail, sl.timestamp, sl.emergency ` +
		from + where + ` ORDER BY sl.timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	var out []model.ScanLog
	for rows.Next() {
		rec, err := scanScanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanScanLog(row rowScanner) (model.ScanLog, error) {
	var rec model.ScanLog
	var passID, subjectID sqlNullUint64
	var emergency int

	err := row.Scan(&rec.ID, &passID, &subjectID, &rec.ScannerID, &rec.Direction, &rec.Result,
		&rec.Detail, &rec.Timestamp, &emergency)
	if err != nil {
		return model.ScanLog{}, fmt.Errorf("scan scan log: %w", err)
	}
	rec.PassID = passID.Ptr()
	rec.SubjectID = subjectID.Ptr()
	rec.Emergency = emergency != 0
	return rec, nil
}
