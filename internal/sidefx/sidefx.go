// Package sidefx dispatches fire-and-forget work, admin/parent
// notifications and biometric verification, that must never alter a pass's
// state-machine outcome, however it turns out. Every call is bounded by a
// wall-clock budget and its error, if any, is logged and discarded.
package sidefx

import (
	"context"
	"log"
	"time"

	"github.com/campusgate/gatepass/internal/model"
)

// DefaultTimeout bounds any single side-effect call.
const DefaultTimeout = 10 * time.Second

// Notifier delivers a message to an external channel (push, SMS, email).
// The default implementation only logs; wiring a real gateway is out of
// scope.
type Notifier interface {
	NotifyNewRequest(ctx context.Context, pass model.PassRequest, subject model.Principal) error
	NotifyScanSuccess(ctx context.Context, pass model.PassRequest, subject model.Principal) error
	NotifyEmergencyExit(ctx context.Context, subject model.Principal) error
}

// Verifier performs biometric face verification against a supplied image.
// The default implementation is a stub that always reports unavailable.
type Verifier interface {
	Verify(ctx context.Context, subjectID uint64, image []byte) (VerifyResult, error)
}

// VerifyResult is the advisory verdict attached to a successful scan
// response when it completes in time; it never affects the gate decision.
type VerifyResult struct {
	Matched    bool
	Confidence float64
}

// LoggingNotifier logs every call instead of dispatching to a real gateway.
type LoggingNotifier struct{}

func (LoggingNotifier) NotifyNewRequest(ctx context.Context, pass model.PassRequest, subject model.Principal) error {
	log.Printf("sidefx: new request pass=%d subject=%s direction=%s", pass.ID, subject.SubjectCode, pass.Direction)
	return nil
}

func (LoggingNotifier) NotifyScanSuccess(ctx context.Context, pass model.PassRequest, subject model.Principal) error {
	log.Printf("sidefx: scan success pass=%d subject=%s parent=%s", pass.ID, subject.SubjectCode, subject.Contact.ParentPhone)
	return nil
}

func (LoggingNotifier) NotifyEmergencyExit(ctx context.Context, subject model.Principal) error {
	log.Printf("sidefx: emergency exit subject=%s parent=%s", subject.SubjectCode, subject.Contact.ParentPhone)
	return nil
}

// StubVerifier never has a real face-matching backend to call.
type StubVerifier struct{}

func (StubVerifier) Verify(ctx context.Context, subjectID uint64, image []byte) (VerifyResult, error) {
	return VerifyResult{}, errUnavailable
}

var errUnavailable = &unavailableError{}

type unavailableError struct{}

func (*unavailableError) Error() string { return "biometric verification unavailable" }

// Dispatcher owns the pluggable Notifier/Verifier and runs every call on its
// own goroutine under DefaultTimeout, so a slow or failing side effect can
// never block or alter the caller's primary response.
type Dispatcher struct {
	Notifier Notifier
	Verifier Verifier
	Timeout  time.Duration
}

// New returns a Dispatcher with logging/stub defaults.
func New() *Dispatcher {
	return &Dispatcher{Notifier: LoggingNotifier{}, Verifier: StubVerifier{}, Timeout: DefaultTimeout}
}

func (d *Dispatcher) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}

// DispatchNewRequest fires NotifyNewRequest on its own goroutine and returns
// immediately.
func (d *Dispatcher) DispatchNewRequest(pass model.PassRequest, subject model.Principal) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
		defer cancel()
		if err := d.Notifier.NotifyNewRequest(ctx, pass, subject); err != nil {
			log.Printf("sidefx: notify new request failed: %v", err)
		}
	}()
}

// DispatchScanSuccess fires NotifyScanSuccess on its own goroutine.
func (d *Dispatcher) DispatchScanSuccess(pass model.PassRequest, subject model.Principal) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
		defer cancel()
		if err := d.Notifier.NotifyScanSuccess(ctx, pass, subject); err != nil {
			log.Printf("sidefx: notify scan success failed: %v", err)
		}
	}()
}

// DispatchEmergencyExit fires NotifyEmergencyExit on its own goroutine.
func (d *Dispatcher) DispatchEmergencyExit(subject model.Principal) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
		defer cancel()
		if err := d.Notifier.NotifyEmergencyExit(ctx, subject); err != nil {
			log.Printf("sidefx: notify emergency exit failed: %v", err)
		}
	}()
}

// VerifyBiometric runs face verification in the background and delivers the
// verdict on the returned channel when (and if) it completes. The caller
// selects on the channel against a short wait of its own and treats a miss
// as "omit the field", never as a gate failure.
func (d *Dispatcher) VerifyBiometric(subjectID uint64, image []byte) <-chan VerifyResult {
	out := make(chan VerifyResult, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
		defer cancel()
		res, err := d.Verifier.Verify(ctx, subjectID, image)
		if err != nil {
			log.Printf("sidefx: biometric verify failed: %v", err)
			return
		}
		out <- res
	}()
	return out
}
