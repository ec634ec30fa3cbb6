package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"drinksync/internal/hydration"
)

// StatusMode prints the stored hydration state and exits without
// touching a transport.
type StatusMode struct {
	Tracker *hydration.Tracker
	Stdout  io.Writer
}

func (m *StatusMode) Run(context.Context) error {
	out := m.Stdout
	if out == nil {
		out = os.Stdout
	}
	t := m.Tracker

	fmt.Fprintf(out, "intake:        %d/%d oz (%.0f%%)\n", t.Intake(), t.Goal(), t.Progress()*100)
	if s := t.Surplus(); s > 0 {
		fmt.Fprintf(out, "surplus:       %d oz\n", s)
	}
	fmt.Fprintf(out, "streak:        %d days\n", t.Streak())
	if g, ok := t.LastWeight(); ok {
		fmt.Fprintf(out, "last weight:   %.2f g\n", g)
	}

	titles := []string{"none"}
	if unlocked := t.Unlocked(); len(unlocked) > 0 {
		titles = titles[:0]
		for _, a := range unlocked {
			titles = append(titles, a.Title)
		}
	}
	fmt.Fprintf(out, "achievements:  %s\n", strings.Join(titles, ", "))

	reminders := "off"
	if t.Notifications() {
		reminders = "on"
	}
	fmt.Fprintf(out, "reminders:     %s\n", reminders)
	return nil
}
