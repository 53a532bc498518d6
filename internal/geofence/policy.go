package geofence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/campusgate/gatepass/internal/model"
)

// PolicyStore persists the process-wide LocationPolicy as a whole-file JSON
// document, tolerating a missing file by returning defaults. A
// temp-then-rename swap is unnecessary at this size; a direct os.WriteFile
// is enough.
type PolicyStore struct {
	path string
}

// NewPolicyStore returns a store backed by the given file path. Callers
// typically pass a path under the configured data directory.
func NewPolicyStore(path string) *PolicyStore {
	return &PolicyStore{path: path}
}

// Load reads the policy from disk, returning DefaultLocationPolicy if the
// file does not exist.
func (s *PolicyStore) Load() (model.LocationPolicy, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return model.DefaultLocationPolicy(), nil
	}
	if err != nil {
		return model.LocationPolicy{}, fmt.Errorf("read location policy: %w", err)
	}

	var p model.LocationPolicy
	if err := json.Unmarshal(data, &p); err != nil {
		return model.LocationPolicy{}, fmt.Errorf("parse location policy: %w", err)
	}
	return p, nil
}

// Save whole-file-replaces the policy document.
func (s *PolicyStore) Save(p model.LocationPolicy) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create location policy dir: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal location policy: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write location policy: %w", err)
	}
	return nil
}

// Evaluator reads a fresh LocationPolicy on every call and evaluates a
// coordinate against it, implementing the "read fresh... on every
// evaluation" requirement for hot reconfiguration.
type Evaluator struct {
	Store  *PolicyStore
	Buffer float64 // meters; defaults to DefaultBufferM when zero
}

// NewEvaluator returns an Evaluator using the default GPS buffer.
func NewEvaluator(store *PolicyStore) *Evaluator {
	return &Evaluator{Store: store, Buffer: DefaultBufferM}
}

// Evaluate loads the current policy and evaluates (lat, lon) against it.
// If the policy is disabled, the result is always Inside=true (callers on
// the strict/enforcing path are expected to check policy.Enabled
// themselves when they need to distinguish "disabled" from "inside").
func (e *Evaluator) Evaluate(lat, lon float64) (model.LocationPolicy, Result, error) {
	policy, err := e.Store.Load()
	if err != nil {
		return model.LocationPolicy{}, Result{}, err
	}

	if !policy.Enabled {
		return policy, Result{Inside: true, Message: "geofencing disabled"}, nil
	}

	buffer := e.Buffer
	if buffer == 0 {
		buffer = DefaultBufferM
	}

	res := Evaluate(lat, lon, policy.Latitude, policy.Longitude, policy.RadiusKM, buffer)
	return policy, res, nil
}
