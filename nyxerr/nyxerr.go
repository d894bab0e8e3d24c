// Package nyxerr defines the error taxonomy shared by every subsystem of
// the orbit determination engine (dynamics, integrator, trajectory,
// station, arcsim, od). Every error names the operation that failed, and
// carries the epoch and device involved when they are known.
package nyxerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind enumerates the error taxonomy of the engine.
type Kind uint8

const (
	// KindConfig flags missing fields, unknown devices, or contradictory TrkConfig.
	KindConfig Kind = iota + 1
	// KindTrajectory flags an out-of-bounds query or an underfull interpolation window.
	KindTrajectory
	// KindPropagation flags a collapsed step size, a non-finite state, or a dynamics failure.
	KindPropagation
	// KindEphemeris flags an unknown frame or an epoch outside ephemeris coverage.
	KindEphemeris
	// KindFilter flags a Cholesky failure, lost symmetry, or smoothing called out of order.
	KindFilter
	// KindCancelled flags a deadline exceeded during a long-running operation.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTrajectory:
		return "trajectory"
	case KindPropagation:
		return "propagation"
	case KindEphemeris:
		return "ephemeris"
	case KindFilter:
		return "filter"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every public operation in
// the engine. It always names the failing operation; Epoch and Device are
// populated when relevant to the failure.
type Error struct {
	Kind   Kind
	Op     string // the operation, e.g. "process_arc", "step", "interpolate"
	Epoch  *time.Time
	Device string
	Cause  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Epoch != nil {
		msg += fmt.Sprintf(" @ %s", e.Epoch.Format(time.RFC3339Nano))
	}
	if e.Device != "" {
		msg += fmt.Sprintf(" (device %s)", e.Device)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is comparisons against a bare Kind-tagged sentinel.
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.Kind == e.Kind
	}
	return false
}

// New builds an Error of the given kind for operation op.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// WithEpoch attaches an epoch to the error, returning the same error for chaining.
func (e *Error) WithEpoch(t time.Time) *Error {
	e.Epoch = &t
	return e
}

// WithDevice attaches a device name to the error, returning the same error for chaining.
func (e *Error) WithDevice(d string) *Error {
	e.Device = d
	return e
}

// Config is a convenience constructor for a KindConfig error.
func Config(op string, cause error) *Error { return New(KindConfig, op, cause) }

// Trajectory is a convenience constructor for a KindTrajectory error.
func Trajectory(op string, cause error) *Error { return New(KindTrajectory, op, cause) }

// Propagation is a convenience constructor for a KindPropagation error.
func Propagation(op string, cause error) *Error { return New(KindPropagation, op, cause) }

// Ephemeris is a convenience constructor for a KindEphemeris error.
func Ephemeris(op string, cause error) *Error { return New(KindEphemeris, op, cause) }

// Filter is a convenience constructor for a KindFilter error.
func Filter(op string, cause error) *Error { return New(KindFilter, op, cause) }

// Cancelled is a convenience constructor for a KindCancelled error.
func Cancelled(op string) *Error { return New(KindCancelled, op, errors.New("deadline exceeded")) }
