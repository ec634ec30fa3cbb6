//go:build !linux

package capability

import (
	"context"
	"fmt"

	ncerr "drinksync/internal/errors"
)

// RadioProbe always denies where RFCOMM sockets are not implemented.
type RadioProbe struct{}

// Check implements Checker.
func (RadioProbe) Check(context.Context) error {
	return fmt.Errorf("%w: %v", ncerr.ErrCapabilityDenied, ncerr.ErrUnsupported)
}
