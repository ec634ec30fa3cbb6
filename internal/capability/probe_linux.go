//go:build linux

package capability

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	ncerr "drinksync/internal/errors"
)

// RadioProbe checks that an RFCOMM socket can be created, which fails
// when the kernel lacks Bluetooth support or the process is confined.
type RadioProbe struct{}

// Check implements Checker.
func (RadioProbe) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		if errors.Is(err, unix.EAFNOSUPPORT) || errors.Is(err, unix.EPROTONOSUPPORT) {
			return fmt.Errorf("%w: no bluetooth support: %v", ncerr.ErrCapabilityDenied, err)
		}
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
			return fmt.Errorf("%w: %v", ncerr.ErrCapabilityDenied, err)
		}
		return fmt.Errorf("radio probe: %w", err)
	}
	unix.Close(fd)
	return nil
}
