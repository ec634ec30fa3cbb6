// Package payload interprets the small text tokens devices exchange
// over a session.  The link itself carries raw chunks; this is the
// caller-side vocabulary layered on top.
package payload

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Tokens of the sync handshake between the phone and the scale.
const (
	SyncRequest   = "Sync"
	SyncConfirmed = "Sync Confirmed"

	// EchoPrefix starts the acknowledgement a device sends back for
	// every message it receives.
	EchoPrefix = "Received: "
)

// Echo returns the acknowledgement for text.
func Echo(text string) string { return EchoPrefix + text }

// Kind classifies a Reading.
type Kind int

const (
	KindText Kind = iota
	KindBool
	KindInt
	KindWeight
	KindSync
	KindSyncConfirmed
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindWeight:
		return "weight"
	case KindSync:
		return "sync"
	case KindSyncConfirmed:
		return "sync-confirmed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reading is one parsed payload.  Only the field matching Kind is set.
type Reading struct {
	Kind  Kind
	Raw   string
	Bool  bool
	Int   int
	Grams float64
}

var weightPattern = regexp.MustCompile(`^Average weight:\s*(-?\d+(?:\.\d+)?)\s*grams$`)

// Parse classifies text.  Surrounding whitespace is ignored; anything
// unrecognised is returned as KindText.
func Parse(text string) Reading {
	s := strings.TrimSpace(text)
	r := Reading{Kind: KindText, Raw: s}

	switch s {
	case "True":
		r.Kind, r.Bool = KindBool, true
		return r
	case "False":
		r.Kind = KindBool
		return r
	case SyncRequest:
		r.Kind = KindSync
		return r
	case SyncConfirmed:
		r.Kind = KindSyncConfirmed
		return r
	}

	if n, err := strconv.Atoi(s); err == nil {
		r.Kind, r.Int = KindInt, n
		return r
	}
	if m := weightPattern.FindStringSubmatch(s); m != nil {
		if g, err := strconv.ParseFloat(m[1], 64); err == nil {
			r.Kind, r.Grams = KindWeight, g
		}
	}
	return r
}

// FormatWeight renders grams the way the scale reports them.
func FormatWeight(grams float64) string {
	return fmt.Sprintf("Average weight: %.2f grams", grams)
}

func (r Reading) String() string {
	switch r.Kind {
	case KindBool:
		return strconv.FormatBool(r.Bool)
	case KindInt:
		return strconv.Itoa(r.Int)
	case KindWeight:
		return strconv.FormatFloat(r.Grams, 'f', 2, 64) + " g"
	default:
		return r.Raw
	}
}
