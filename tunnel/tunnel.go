// Package tunnel carries device links through an SSH gateway, usually
// the Raspberry Pi the scale is wired to, so a TCP-bridged device can
// be reached from outside its network.
package tunnel

import (
	"context"
	"net"
)

// Tunnel is an established path through which connections to hosts
// behind the gateway can be opened.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address as seen from the gateway.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close tears the tunnel down.
	Close() error

	// IsAlive reports whether the gateway connection is still up.
	IsAlive() bool
}
