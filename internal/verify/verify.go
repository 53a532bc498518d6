// Package verify implements the gate scan decision procedure: parse the
// token, check its signature and expiry outside any lock, then hand off to
// the lifecycle engine's exactly-once consume under the pass's row lock.
package verify

import (
	"context"
	"errors"
	"time"

	"github.com/campusgate/gatepass/internal/lifecycle"
	"github.com/campusgate/gatepass/internal/model"
	"github.com/campusgate/gatepass/internal/sidefx"
	"github.com/campusgate/gatepass/internal/store"
	"github.com/campusgate/gatepass/internal/token"
)

// Outcome is the tagged result of a verification attempt; it replaces the
// exception-driven control flow of a _fail-and-raise implementation with a
// single value every caller can switch on.
type Outcome struct {
	Result    model.ScanResult
	Detail    string
	Pass      *model.PassRequest
	Subject   *model.Principal
	Biometric *sidefx.VerifyResult
}

func fail(result model.ScanResult, detail string) Outcome {
	return Outcome{Result: result, Detail: detail}
}

// Recorder appends a scan log entry and fans it out to live subscribers.
// Satisfied by *audit.Recorder; kept as an interface here so this package
// does not import audit's websocket plumbing.
type Recorder interface {
	Record(ctx context.Context, rec model.ScanLog) (model.ScanLog, error)
}

// Verifier combines the token codec, the pass store, the lifecycle engine,
// and the side-effect dispatcher to evaluate one gate scan and log it.
type Verifier struct {
	Store     *store.Store
	Lifecycle *lifecycle.Engine
	Recorder  Recorder
	Secret    []byte
	SideFX    *sidefx.Dispatcher
	Now       func() time.Time
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Scan runs the seven-step decision procedure for rawToken presented to
// scanner, writes exactly one ScanLog, and returns the outcome. image may be
// nil; when present it is handed to the biometric side effect only after a
// successful consume.
func (v *Verifier) Scan(ctx context.Context, rawToken string, scanner model.Principal, image []byte) (Outcome, error) {
	fields, ok := token.Parse(rawToken)
	if !ok {
		return v.logAndReturn(ctx, fail(model.ResultInvalid, "malformed"), nil, scanner, model.Direction(""))
	}

	if !token.Verify(v.Secret, fields) {
		return v.logAndReturn(ctx, fail(model.ResultInvalid, "sig-mismatch"), &fields.PassID, scanner, model.Direction(""))
	}

	pass, err := v.Store.GetPass(ctx, fields.PassID)
	if errors.Is(err, store.ErrNotFound) {
		return v.logAndReturn(ctx, fail(model.ResultInvalid, "no-pass"), &fields.PassID, scanner, model.Direction(""))
	}
	if err != nil {
		return Outcome{}, err
	}

	// now == E is treated as expired, not valid: use !Before rather than After.
	if !v.now().Before(fields.Expiry) {
		return v.logAndReturn(ctx, fail(model.ResultExpired, "past-expiry"), &pass.ID, scanner, pass.Direction)
	}

	if pass.State != model.StateApproved {
		return v.logAndReturn(ctx, fail(model.ResultNotApproved, string(pass.State)), &pass.ID, scanner, pass.Direction)
	}

	used, err := v.Lifecycle.Consume(ctx, pass.ID, scanner)
	if errors.Is(err, lifecycle.ErrReplay) {
		return v.logAndReturn(ctx, fail(model.ResultReplay, "already-used"), &pass.ID, scanner, pass.Direction)
	}
	if err != nil {
		return Outcome{}, err
	}

	subject, err := v.Store.GetPrincipal(ctx, used.SubjectID)
	if err != nil {
		return Outcome{}, err
	}

	outcome, err := v.logAndReturn(ctx, Outcome{Result: model.ResultSuccess, Detail: "verified", Pass: &used, Subject: &subject}, &pass.ID, scanner, pass.Direction)
	if err != nil {
		return Outcome{}, err
	}

	if v.SideFX != nil {
		v.SideFX.DispatchScanSuccess(used, subject)
		if image != nil {
			verdict := v.SideFX.VerifyBiometric(subject.ID, image)
			select {
			case res := <-verdict:
				outcome.Biometric = &res
			case <-time.After(200 * time.Millisecond):
				// Omit: verdict did not complete in time for this response.
			}
		}
	}

	return outcome, nil
}

func (v *Verifier) logAndReturn(ctx context.Context, outcome Outcome, passID *uint64, scanner model.Principal, direction model.Direction) (Outcome, error) {
	var subjectID *uint64
	if outcome.Subject != nil {
		id := outcome.Subject.ID
		subjectID = &id
	}

	rec := model.ScanLog{
		PassID:    passID,
		SubjectID: subjectID,
		ScannerID: scanner.ID,
		Direction: direction,
		Result:    outcome.Result,
		Detail:    outcome.Detail,
		Timestamp: v.now(),
	}

	if v.Recorder != nil {
		if _, err := v.Recorder.Record(ctx, rec); err != nil {
			return Outcome{}, err
		}
		return outcome, nil
	}

	if _, err := v.Store.InsertScan(ctx, rec); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}
