package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// RFCOMM reaches a paired Bluetooth device over a serial-port channel.
// Peer addresses look like "AA:BB:CC:DD:EE:FF" or
// "AA:BB:CC:DD:EE:FF/3" to pick a channel other than Channel.
//
// Both sides agree on a channel number only.  The listener does not
// register an SDP record, so the service UUID and name are never
// advertised and a client never sees ErrServiceNotFound on this
// transport; a wrong channel surfaces as a refused connect.  Publishing
// the record is left to bluetoothd (sdptool add --channel=N SP).
type RFCOMM struct {
	// Channel is used when the peer address does not name one.
	Channel uint8
	Timeout time.Duration
}

// ParseRFCOMMAddress splits peer into a little-endian device address,
// the byte order the kernel expects, and a channel.
func ParseRFCOMMAddress(peer string, defaultChannel uint8) ([6]byte, uint8, error) {
	var bd [6]byte

	mac, chSpec, hasCh := strings.Cut(peer, "/")
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) != 6 {
		return bd, 0, fmt.Errorf("invalid bluetooth address %q", mac)
	}
	for i := 0; i < 6; i++ {
		bd[i] = hw[5-i]
	}

	ch := defaultChannel
	if hasCh {
		n, err := strconv.Atoi(chSpec)
		if err != nil || n < 1 || n > 30 {
			return bd, 0, fmt.Errorf("invalid rfcomm channel %q (want 1-30)", chSpec)
		}
		ch = uint8(n)
	}
	if ch == 0 {
		ch = DefaultRFCOMMChannel
	}
	return bd, ch, nil
}

// FormatBDAddr renders a little-endian device address as the usual
// colon-separated, most-significant-first string.
func FormatBDAddr(bd [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		bd[5], bd[4], bd[3], bd[2], bd[1], bd[0])
}
