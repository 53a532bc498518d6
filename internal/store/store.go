// Package store is the transactional persistence layer: principals, pass
// requests, and scan logs on top of SQLite. All writes funnel through a
// single-writer queue so update_pass is linearizable with respect to other
// update_pass calls on the same id, which is the substrate exactly-once
// consumption rests on.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/campusgate/gatepass/internal/model"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// Store wraps a SQLite connection and a serialized write path.
type Store struct {
	db      *sql.DB
	writeQ  *WriteQueue
}

// New wraps db with a write queue using sensible defaults.
func New(db *sql.DB) *Store {
	return &Store{db: db, writeQ: NewWriteQueue(DefaultWriteQueueConfig())}
}

// Close stops the write queue. The underlying *sql.DB is owned by the caller.
func (s *Store) Close() {
	s.writeQ.Close()
}

// GetPrincipal loads a principal by id.
func (s *Store) GetPrincipal(ctx context.Context, id uint64) (model.Principal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, active, COALESCE(subject_code, ''), validity_end,
		       face_registered, face_registered_at, phone, parent_name, parent_phone, parent_push_token
		FROM principals WHERE id = ?`, id)
	return scanPrincipal(row)
}

// GetPrincipalBySubjectCode loads a principal by its unique student code.
func (s *Store) GetPrincipalBySubjectCode(ctx context.Context, code string) (model.Principal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, active, COALESCE(subject_code, ''), validity_end,
		       face_registered, face_registered_at, phone, parent_name, parent_phone, parent_push_token
		FROM principals WHERE subject_code = ?`, code)
	return scanPrincipal(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (model.Principal, error) {
	var p model.Principal
	var validityEnd, faceRegisteredAt sql.NullTime
	var subjectCode, phone, parentName, parentPhone, parentPushToken sql.NullString
	var active, faceRegistered int

	err := row.Scan(&p.ID, &p.Name, &p.Role, &active, &subjectCode, &validityEnd,
		&faceRegistered, &faceRegisteredAt, &phone, &parentName, &parentPhone, &parentPushToken)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Principal{}, ErrNotFound
	}
	if err != nil {
		return model.Principal{}, fmt.Errorf("scan principal: %w", err)
	}

	p.Active = active != 0
	p.SubjectCode = subjectCode.String
	if validityEnd.Valid {
		t := validityEnd.Time
		p.ValidityEnd = &t
	}
	p.Biometrics.FaceRegistered = faceRegistered != 0
	if faceRegisteredAt.Valid {
		t := faceRegisteredAt.Time
		p.Biometrics.FaceRegisteredAt = &t
	}
	p.Contact.Phone = phone.String
	p.Contact.ParentName = parentName.String
	p.Contact.ParentPhone = parentPhone.String
	p.Contact.ParentPushToken = parentPushToken.String

	return p, nil
}

// GetPass loads a pass request by id.
func (s *Store) GetPass(ctx context.Context, id uint64) (model.PassRequest, error) {
	row := s.db.QueryRowContext(ctx, passSelectColumns+` FROM pass_requests WHERE id = ?`, id)
	return scanPass(row)
}

const passSelectColumns = `
	SELECT id, subject_id, direction, reason, state, request_time, approved_time,
	       expiry, used_time, approver_id, consumer_id, COALESCE(token, ''),
	       origin_lat, origin_lon, location_ok`

func scanPass(row rowScanner) (model.PassRequest, error) {
	var p model.PassRequest
	var approvedTime, expiry, usedTime sql.NullTime
	var approverID, consumerID sql.NullInt64
	var originLat, originLon sql.NullFloat64
	var locationOK int

	err := row.Scan(&p.ID, &p.SubjectID, &p.Direction, &p.Reason, &p.State, &p.RequestTime,
		&approvedTime, &expiry, &usedTime, &approverID, &consumerID, &p.Token,
		&originLat, &originLon, &locationOK)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PassRequest{}, ErrNotFound
	}
	if err != nil {
		return model.PassRequest{}, fmt.Errorf("scan pass: %w", err)
	}

	if approvedTime.Valid {
		t := approvedTime.Time
		p.ApprovedTime = &t
	}
	if expiry.Valid {
		t := expiry.Time
		p.Expiry = &t
	}
	if usedTime.Valid {
		t := usedTime.Time
		p.UsedTime = &t
	}
	if approverID.Valid {
		v := uint64(approverID.Int64)
		p.ApproverID = &v
	}
	if consumerID.Valid {
		v := uint64(consumerID.Int64)
		p.ConsumerID = &v
	}
	if originLat.Valid {
		v := originLat.Float64
		p.OriginLat = &v
	}
	if originLon.Valid {
		v := originLon.Float64
		p.OriginLon = &v
	}
	p.LocationOK = locationOK != 0

	return p, nil
}

// InsertPass inserts a new pending pass request and returns its id. Callers
// should leave ID, ApprovedTime, Expiry, UsedTime, ApproverID, ConsumerID,
// and Token zero; those are set only by approve/consume.
func (s *Store) InsertPass(ctx context.Context, draft model.PassRequest) (uint64, error) {
	var id uint64
	err := s.writeQ.Write(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO pass_requests
				(subject_id, direction, reason, state, request_time, origin_lat, origin_lon, location_ok)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			draft.SubjectID, draft.Direction, draft.Reason, draft.State, draft.RequestTime,
			nullableFloat(draft.OriginLat), nullableFloat(draft.OriginLon), boolToInt(draft.LocationOK))
		if err != nil {
			return fmt.Errorf("insert pass: %w", err)
		}
		lastID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert pass: last insert id: %w", err)
		}
		id = uint64(lastID)
		return nil
	})
	return id, err
}

// Mutator inspects and modifies a pass under the row lock implied by the
// write queue's single-writer serialization. Returning an error aborts the
// write: no columns are persisted.
type Mutator func(p *model.PassRequest) error

// UpdatePass loads the current row, applies mutator, and persists the
// result, all inside the single write-queue worker, so concurrent
// UpdatePass calls on the same id are linearized.
func (s *Store) UpdatePass(ctx context.Context, id uint64, mutate Mutator) (model.PassRequest, error) {
	var result model.PassRequest
	err := s.writeQ.Write(ctx, func() error {
		row := s.db.QueryRowContext(ctx, passSelectColumns+` FROM pass_requests WHERE id = ?`, id)
		p, err := scanPass(row)
		if err != nil {
			return err
		}

		if err := mutate(&p); err != nil {
			return err
		}

		_, err = s.db.ExecContext(ctx, `
			UPDATE pass_requests SET
				state = ?, approved_time = ?, expiry = ?, used_time = ?,
				approver_id = ?, consumer_id = ?, token = ?, location_ok = ?
			WHERE id = ?`,
			p.State, nullableTime(p.ApprovedTime), nullableTime(p.Expiry), nullableTime(p.UsedTime),
			nullableUint(p.ApproverID), nullableUint(p.ConsumerID), p.Token, boolToInt(p.LocationOK), id)
		if err != nil {
			return fmt.Errorf("update pass: %w", err)
		}

		result = p
		return nil
	})
	return result, err
}

// InsertScan appends a scan log record. Scan logs are never mutated or
// deleted afterward.
func (s *Store) InsertScan(ctx context.Context, rec model.ScanLog) (uint64, error) {
	var id uint64
	err := s.writeQ.Write(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO scan_logs (pass_id, subject_id, scanner_id, direction, result, detail, timestamp, emergency)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			nullableUint(rec.PassID), nullableUint(rec.SubjectID), rec.ScannerID, rec.Direction,
			rec.Result, rec.Detail, rec.Timestamp, boolToInt(rec.Emergency))
		if err != nil {
			return fmt.Errorf("insert scan: %w", err)
		}
		lastID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert scan: last insert id: %w", err)
		}
		id = uint64(lastID)
		return nil
	})
	return id, err
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableUint(v *uint64) any {
	if v == nil {
		return nil
	}
	return *v
}
