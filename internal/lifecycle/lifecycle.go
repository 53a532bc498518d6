// Package lifecycle drives the pass state machine: issuance, approval,
// rejection, exactly-once consumption, and the self-service daily path.
// Every mutation goes through store.Store.UpdatePass, which linearizes
// concurrent updates to the same pass id.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campusgate/gatepass/internal/geofence"
	"github.com/campusgate/gatepass/internal/model"
	"github.com/campusgate/gatepass/internal/sidefx"
	"github.com/campusgate/gatepass/internal/store"
	"github.com/campusgate/gatepass/internal/token"
)

// Error kinds returned by lifecycle operations. Callers map these onto HTTP
// status codes at the boundary.
var (
	ErrNotFound    = errors.New("lifecycle: pass not found")
	ErrWrongState  = errors.New("lifecycle: wrong state for this action")
	ErrReplay      = errors.New("lifecycle: pass already used")
	ErrExpiredLock = errors.New("lifecycle: subject validity window has expired")
	ErrGeofence    = errors.New("lifecycle: location verification failed")
	ErrDirection   = errors.New("lifecycle: invalid direction")
)

// DefaultTTL is the time between approval and expiry.
const DefaultTTL = 15 * time.Minute

// Recorder appends a scan log entry and fans it out to live subscribers.
// Satisfied by *audit.Recorder; kept as an interface here so this package
// does not import audit's websocket plumbing. Optional: EmergencyExit falls
// back to a bare store insert with no broadcast when unset.
type Recorder interface {
	Record(ctx context.Context, rec model.ScanLog) (model.ScanLog, error)
}

// Engine drives the pass lifecycle against a Store, minting tokens with
// Secret and notifying admins/parents through the side-effect dispatcher.
type Engine struct {
	Store     *store.Store
	Recorder  Recorder
	Secret    []byte
	TTL       time.Duration
	Geofence  *geofence.Evaluator
	SideFX    *sidefx.Dispatcher
	Zone      *time.Location // civil-date zone for daily() idempotency
	Now       func() time.Time
}

// New builds an Engine with DefaultTTL and time.Now as its clock.
func New(s *store.Store, secret []byte, geo *geofence.Evaluator, fx *sidefx.Dispatcher, zone *time.Location) *Engine {
	return &Engine{Store: s, Secret: secret, TTL: DefaultTTL, Geofence: geo, SideFX: fx, Zone: zone, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Create issues a pending pass. If gps is non-nil, the geofence is evaluated
// in advisory mode: the result is recorded but never blocks issuance.
func (e *Engine) Create(ctx context.Context, subject model.Principal, direction model.Direction, reason string, gps *GPS) (model.PassRequest, error) {
	if !direction.Valid() {
		return model.PassRequest{}, ErrDirection
	}

	draft := model.PassRequest{
		SubjectID:   subject.ID,
		Direction:   direction,
		Reason:      reason,
		State:       model.StatePending,
		RequestTime: e.now(),
	}

	if gps != nil {
		draft.OriginLat = &gps.Lat
		draft.OriginLon = &gps.Lon
		if e.Geofence != nil {
			_, res, err := e.Geofence.Evaluate(gps.Lat, gps.Lon)
			if err == nil {
				draft.LocationOK = res.Inside
			}
		}
	}

	id, err := e.Store.InsertPass(ctx, draft)
	if err != nil {
		return model.PassRequest{}, fmt.Errorf("create pass: %w", err)
	}
	draft.ID = id

	if e.SideFX != nil {
		e.SideFX.DispatchNewRequest(draft, subject)
	}

	return draft, nil
}

// GPS is an optional coordinate supplied with a pass request.
type GPS struct {
	Lat, Lon float64
}

// Approve mints a token and transitions pending -> approved.
func (e *Engine) Approve(ctx context.Context, passID uint64, admin model.Principal) (model.PassRequest, error) {
	return e.Store.UpdatePass(ctx, passID, func(p *model.PassRequest) error {
		if p.State != model.StatePending {
			return ErrWrongState
		}
		return e.mintAndApprove(p, admin.ID)
	})
}

// mintAndApprove atomically sets token, approved_time, expiry, approver_id,
// and state := approved. Assumes the caller already checked p.State.
func (e *Engine) mintAndApprove(p *model.PassRequest, approverID uint64) error {
	now := e.now()
	expiry := now.Add(e.ttl())

	p.Token = token.Encode(e.Secret, p.ID, p.SubjectID, expiry)
	p.ApprovedTime = &now
	p.Expiry = &expiry
	p.ApproverID = &approverID
	p.State = model.StateApproved
	return nil
}

func (e *Engine) ttl() time.Duration {
	if e.TTL > 0 {
		return e.TTL
	}
	return DefaultTTL
}

// Reject transitions pending -> rejected. No token is minted.
func (e *Engine) Reject(ctx context.Context, passID uint64, admin model.Principal) (model.PassRequest, error) {
	return e.Store.UpdatePass(ctx, passID, func(p *model.PassRequest) error {
		if p.State != model.StatePending {
			return ErrWrongState
		}
		p.State = model.StateRejected
		return nil
	})
}

// Consume marks an approved pass used, exactly once. Two concurrent callers
// racing on the same pass id are linearized by the store's write queue;
// exactly one observes a state transition, the other observes ErrReplay.
func (e *Engine) Consume(ctx context.Context, passID uint64, scanner model.Principal) (model.PassRequest, error) {
	return e.Store.UpdatePass(ctx, passID, func(p *model.PassRequest) error {
		if p.UsedTime != nil {
			return ErrReplay
		}
		now := e.now()
		consumerID := scanner.ID
		p.UsedTime = &now
		p.ConsumerID = &consumerID
		p.State = model.StateUsed
		return nil
	})
}

// EmergencyExit bypasses approval and tokenization entirely: it writes a
// successful exit scan directly with no backing pass and no idempotency
// guard, favoring safety over strict accounting. Repeated calls produce
// repeated logs.
func (e *Engine) EmergencyExit(ctx context.Context, subject model.Principal, scanner model.Principal) (model.ScanLog, error) {
	rec := model.ScanLog{
		SubjectID: &subject.ID,
		ScannerID: scanner.ID,
		Direction: model.DirectionExit,
		Result:    model.ResultSuccess,
		Detail:    "emergency-exit",
		Timestamp: e.now(),
		Emergency: true,
	}

	var err error
	if e.Recorder != nil {
		rec, err = e.Recorder.Record(ctx, rec)
	} else {
		var id uint64
		id, err = e.Store.InsertScan(ctx, rec)
		rec.ID = id
	}
	if err != nil {
		return model.ScanLog{}, fmt.Errorf("emergency exit: %w", err)
	}

	if e.SideFX != nil {
		e.SideFX.DispatchEmergencyExit(subject)
	}

	return rec, nil
}

func civilDay(t time.Time, zone *time.Location) (start, end time.Time) {
	if zone == nil {
		zone = time.UTC
	}
	local := t.In(zone)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, zone)
	end = start.AddDate(0, 0, 1)
	return start, end
}

func civilDateLabel(t time.Time, zone *time.Location) string {
	if zone == nil {
		zone = time.UTC
	}
	local := t.In(zone)
	return fmt.Sprintf("%02d/%02d/%04d", local.Day(), local.Month(), local.Year())
}

// Daily implements the self-service path: strict geofence enforcement,
// validity-window check, and idempotency keyed on (subject, direction,
// civil-date). Repeated calls within the same civil day return the same
// pass, promoting a pending one to approved if necessary.
func (e *Engine) Daily(ctx context.Context, subject model.Principal, direction model.Direction, gps GPS) (model.PassRequest, error) {
	if !direction.Valid() {
		return model.PassRequest{}, ErrDirection
	}

	now := e.now()
	if subject.Expired(now) {
		return model.PassRequest{}, ErrExpiredLock
	}

	if e.Geofence != nil {
		_, res, err := e.Geofence.Evaluate(gps.Lat, gps.Lon)
		if err != nil {
			return model.PassRequest{}, fmt.Errorf("daily geofence: %w", err)
		}
		if !res.Inside {
			return model.PassRequest{}, ErrGeofence
		}
	}

	dayStart, dayEnd := civilDay(now, e.Zone)

	existing, err := e.Store.FindIdempotentDaily(ctx, subject.ID, direction, dayStart, dayEnd)
	if err == nil {
		if existing.State == model.StateApproved {
			return existing, nil
		}
		if existing.State == model.StatePending {
			return e.Store.UpdatePass(ctx, existing.ID, func(p *model.PassRequest) error {
				if p.State != model.StatePending {
					return ErrWrongState
				}
				return e.mintAndApprove(p, subject.ID)
			})
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.PassRequest{}, fmt.Errorf("daily idempotency lookup: %w", err)
	}

	reason := fmt.Sprintf("Daily %s – %s", direction, civilDateLabel(now, e.Zone))
	lat, lon := gps.Lat, gps.Lon
	draft := model.PassRequest{
		SubjectID:   subject.ID,
		Direction:   direction,
		Reason:      reason,
		State:       model.StatePending,
		RequestTime: now,
		OriginLat:   &lat,
		OriginLon:   &lon,
		LocationOK:  true,
	}

	id, err := e.Store.InsertPass(ctx, draft)
	if err != nil {
		return model.PassRequest{}, fmt.Errorf("daily create pass: %w", err)
	}

	return e.Store.UpdatePass(ctx, id, func(p *model.PassRequest) error {
		return e.mintAndApprove(p, subject.ID)
	})
}
