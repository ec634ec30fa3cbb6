package core

import (
	"fmt"
	"io"
	"strings"
	"time"

	"drinksync/config"
	"drinksync/internal/hydration"
	"drinksync/internal/payload"
	"drinksync/util"
)

// exchange turns inbound device messages into output, hydration
// updates and protocol replies.  It runs on a mode's event loop only.
type exchange struct {
	out     io.Writer
	tracker *hydration.Tracker // nil disables tracking
	reply   string
	logger  *util.Logger
	now     func() time.Time // nil means time.Now
}

// received handles one inbound chunk.  It returns the reply owed to the
// peer, if the reply policy calls for one.
func (x *exchange) received(text string) (string, bool) {
	x.print(text)

	r := payload.Parse(text)
	x.logger.Debug("received %s %q", r.Kind, r.Raw)
	x.apply(r)

	switch x.reply {
	case config.ReplyEcho:
		return payload.Echo(text), true
	case config.ReplySync:
		if r.Kind == payload.KindSync {
			return payload.SyncConfirmed, true
		}
	}
	return "", false
}

// print writes text as a line of its own.  Chunks carry no framing, so
// a newline is added unless the peer already sent one.
func (x *exchange) print(text string) {
	if strings.HasSuffix(text, "\n") {
		fmt.Fprint(x.out, text)
		return
	}
	fmt.Fprintln(x.out, text)
}

func (x *exchange) apply(r payload.Reading) {
	if x.tracker == nil {
		return
	}
	now := time.Now
	if x.now != nil {
		now = x.now
	}
	rollover(x.tracker, now(), x.logger)

	ch, err := x.tracker.Apply(r)
	if err != nil {
		x.logger.Error("saving intake: %v", err)
		return
	}
	if ch.AddedOz == 0 {
		return
	}
	x.logger.Info("intake %d/%d oz (+%d)", x.tracker.Intake(), x.tracker.Goal(), ch.AddedOz)
	if ch.GoalReached {
		x.announce("daily goal of %d oz reached", x.tracker.Goal())
	}
}

// announce prints a milestone to the user when reminders are on and
// only logs it otherwise.
func (x *exchange) announce(format string, args ...interface{}) {
	if x.tracker.Notifications() {
		fmt.Fprintf(x.out, "* "+format+"\n", args...)
		return
	}
	x.logger.Verbose(format, args...)
}

// rollover closes the days that ended since the tracker was last used.
func rollover(t *hydration.Tracker, now time.Time, logger *util.Logger) {
	unlocked, err := t.Rollover(now)
	if err != nil {
		logger.Error("closing the day: %v", err)
	}
	for _, a := range unlocked {
		logger.Info("achievement unlocked: %s (%d-day streak)", a.Title, a.Days)
	}
}
