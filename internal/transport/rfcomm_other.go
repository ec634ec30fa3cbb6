//go:build !linux

package transport

import (
	"context"

	ncerr "drinksync/internal/errors"
)

// Dial is only implemented on Linux (BlueZ sockets).
func (r *RFCOMM) Dial(_ context.Context, peer string) (Handle, error) {
	return nil, ncerr.Wrap("dial", peer, ncerr.ErrUnsupported)
}

// Listen is only implemented on Linux (BlueZ sockets).
func (r *RFCOMM) Listen(_ context.Context, svc ServiceIdentity) (Listener, error) {
	return nil, ncerr.Wrap("listen", svc.String(), ncerr.ErrUnsupported)
}

// Close is a no-op.
func (r *RFCOMM) Close() error { return nil }
