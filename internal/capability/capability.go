// Package capability answers one question before a session touches the
// radio: is this process allowed to use it right now?  Permission
// prompts and adapter power state live outside drinksync; sessions only
// see a granted or denied result.
package capability

import (
	"context"
	"fmt"

	ncerr "drinksync/internal/errors"
)

// Checker reports whether the transport may be used.  A nil error means
// granted; denial is reported as an error wrapping
// [ncerr.ErrCapabilityDenied].
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// Granted always allows.
var Granted Checker = CheckerFunc(func(context.Context) error { return nil })

// Denied always refuses with reason.
func Denied(reason string) Checker {
	return CheckerFunc(func(context.Context) error {
		return fmt.Errorf("%w: %s", ncerr.ErrCapabilityDenied, reason)
	})
}

// Toggle is a switchable checker for hosts that learn about permission
// changes at runtime (e.g. a settings screen flipping Bluetooth access).
type Toggle struct {
	granted chan bool
}

// NewToggle returns a Toggle starting in the given state.
func NewToggle(granted bool) *Toggle {
	t := &Toggle{granted: make(chan bool, 1)}
	t.granted <- granted
	return t
}

// Set records the current permission state.
func (t *Toggle) Set(granted bool) {
	<-t.granted
	t.granted <- granted
}

// Check implements Checker.
func (t *Toggle) Check(ctx context.Context) error {
	var g bool
	select {
	case g = <-t.granted:
		t.granted <- g
	case <-ctx.Done():
		return ctx.Err()
	}
	if !g {
		return fmt.Errorf("%w: permission revoked", ncerr.ErrCapabilityDenied)
	}
	return nil
}
