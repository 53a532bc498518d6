package audit

import (
	"context"

	"github.com/campusgate/gatepass/internal/model"
	"github.com/campusgate/gatepass/internal/store"
)

// Recorder is the single choke point every scan attempt passes through: it
// appends to the store's append-only log, then fans the record out to the
// live Hub. Every ScanLog insert is followed by a non-blocking broadcast.
type Recorder struct {
	Store *store.Store
	Hub   *Hub
}

// NewRecorder wires a store and hub together.
func NewRecorder(s *store.Store, h *Hub) *Recorder {
	return &Recorder{Store: s, Hub: h}
}

// Record persists rec and broadcasts it, returning the persisted copy with
// its assigned id.
func (r *Recorder) Record(ctx context.Context, rec model.ScanLog) (model.ScanLog, error) {
	id, err := r.Store.InsertScan(ctx, rec)
	if err != nil {
		return model.ScanLog{}, err
	}
	rec.ID = id

	if r.Hub != nil {
		r.Hub.Broadcast(rec)
	}
	return rec, nil
}

// Recent returns the most recent n scan logs, newest first. Used both as
// the Hub's initial-backlog source and by the /api/logs/recent handler.
func (r *Recorder) Recent(limit int) []model.ScanLog {
	logs, err := r.Store.QueryScans(context.Background(), store.ScanFilter{}, limit)
	if err != nil {
		return nil
	}
	return logs
}
