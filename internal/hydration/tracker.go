package hydration

import (
	"fmt"
	"math"
	"sync"
	"time"

	"drinksync/internal/payload"
)

// Setting keys, shared with the phone app's preferences.
const (
	KeyDailyGoal     = "dailyGoal"
	KeyIntake        = "currentIntake"
	KeyStreak        = "streak"
	KeyNotifications = "notifications"
	KeyLastWeight    = "lastWeightCentigrams"
	KeyDay           = "day" // yyyymmdd of the day intake belongs to
)

const (
	// DefaultGoal is the daily goal in ounces.
	DefaultGoal = 64
	// ServingOz is what one "True" drink event counts for.
	ServingOz = 8
	// GramsPerOz converts a drop in bottle weight into fluid ounces of
	// water.
	GramsPerOz = 29.5735
	// MinDrinkGrams filters scale noise out of weight differences.
	MinDrinkGrams = 5.0

	// MaxReadingOz caps a single reported drink.  Larger values are
	// treated as garbage from the device and ignored.
	MaxReadingOz = 1024
	// MaxScaleGrams is the heaviest weight the scale can report.
	MaxScaleGrams = 100000.0
)

// Achievement is a streak milestone.
type Achievement struct {
	ID    string
	Title string
	Days  int
}

// Achievements lists every milestone in unlock order.
var Achievements = []Achievement{
	{ID: "hydration_hero", Title: "Hydration Hero", Days: 7},
	{ID: "hydration_master", Title: "Ultimate Hydration Master", Days: 30},
}

func achievementKey(id string) string { return "achievement." + id }

// Change describes the effect of one applied reading.
type Change struct {
	AddedOz     int
	GoalReached bool // intake crossed the goal with this reading
}

// Tracker applies readings to a Store.  It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	store Store
}

// NewTracker returns a Tracker over s.
func NewTracker(s Store) *Tracker {
	return &Tracker{store: s}
}

// Goal returns the daily goal in ounces.
func (t *Tracker) Goal() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.goal()
}

func (t *Tracker) goal() int {
	g := t.store.Int(KeyDailyGoal, DefaultGoal)
	if g <= 0 {
		return DefaultGoal
	}
	return g
}

// SetGoal changes the daily goal.
func (t *Tracker) SetGoal(oz int) error {
	if oz <= 0 {
		return fmt.Errorf("daily goal must be positive, got %d", oz)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.SetInt(KeyDailyGoal, oz)
}

// Intake returns today's intake in ounces.
func (t *Tracker) Intake() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Int(KeyIntake, 0)
}

// SetIntake overwrites today's intake.
func (t *Tracker) SetIntake(oz int) error {
	if oz < 0 {
		return fmt.Errorf("intake cannot be negative, got %d", oz)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.SetInt(KeyIntake, oz)
}

// AddIntake adds oz to today's intake.
func (t *Tracker) AddIntake(oz int) (Change, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addLocked(oz)
}

func (t *Tracker) addLocked(oz int) (Change, error) {
	if oz <= 0 || oz > MaxReadingOz {
		return Change{}, nil
	}
	goal := t.goal()
	before := t.store.Int(KeyIntake, 0)
	if before > math.MaxInt-oz {
		oz = math.MaxInt - before
	}
	if oz == 0 {
		return Change{}, nil
	}
	after := before + oz
	if err := t.store.SetInt(KeyIntake, after); err != nil {
		return Change{}, err
	}
	return Change{AddedOz: oz, GoalReached: before < goal && after >= goal}, nil
}

// Progress returns intake divided by goal.  It exceeds 1 past the goal.
func (t *Tracker) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.store.Int(KeyIntake, 0)) / float64(t.goal())
}

// Surplus returns how many ounces intake exceeds the goal by.
func (t *Tracker) Surplus() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.store.Int(KeyIntake, 0) - t.goal(); s > 0 {
		return s
	}
	return 0
}

// Streak returns the number of consecutive days the goal was met.
func (t *Tracker) Streak() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Int(KeyStreak, 0)
}

// EndDay closes the current day: the streak grows when the goal was
// met and resets otherwise, intake starts again from zero, and any
// milestone reached for the first time is returned.
func (t *Tracker) EndDay() ([]Achievement, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endDayLocked()
}

func (t *Tracker) endDayLocked() ([]Achievement, error) {
	streak := t.store.Int(KeyStreak, 0)
	if t.store.Int(KeyIntake, 0) >= t.goal() {
		streak++
	} else {
		streak = 0
	}
	if err := t.store.SetInt(KeyStreak, streak); err != nil {
		return nil, err
	}
	if err := t.store.SetInt(KeyIntake, 0); err != nil {
		return nil, err
	}

	var unlocked []Achievement
	for _, a := range Achievements {
		key := achievementKey(a.ID)
		if streak >= a.Days && !t.store.Bool(key, false) {
			if err := t.store.SetBool(key, true); err != nil {
				return unlocked, err
			}
			unlocked = append(unlocked, a)
		}
	}
	return unlocked, nil
}

// Rollover ends every day that passed since intake was last recorded,
// so the streak and achievements follow the calendar.  The first call
// only stamps today.  A skipped day breaks the streak.
func (t *Tracker) Rollover(now time.Time) ([]Achievement, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := dayKey(now)
	last := t.store.Int(KeyDay, 0)
	if last == today {
		return nil, nil
	}
	if last == 0 || last > today {
		return nil, t.store.SetInt(KeyDay, today)
	}

	unlocked, err := t.endDayLocked()
	if err != nil {
		return unlocked, err
	}
	if daysBetween(last, today) > 1 {
		if err := t.store.SetInt(KeyStreak, 0); err != nil {
			return unlocked, err
		}
	}
	return unlocked, t.store.SetInt(KeyDay, today)
}

func dayKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

func daysBetween(from, to int) int {
	date := func(k int) time.Time {
		return time.Date(k/10000, time.Month(k/100%100), k%100, 0, 0, 0, 0, time.UTC)
	}
	return int(date(to).Sub(date(from)).Hours() / 24)
}

// Unlocked returns the achievements earned so far.  Earned milestones
// stay earned after a streak resets.
func (t *Tracker) Unlocked() []Achievement {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Achievement
	for _, a := range Achievements {
		if t.store.Bool(achievementKey(a.ID), false) {
			out = append(out, a)
		}
	}
	return out
}

// Notifications reports whether reminders are enabled (default on).
func (t *Tracker) Notifications() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Bool(KeyNotifications, true)
}

// SetNotifications toggles reminders.
func (t *Tracker) SetNotifications(on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.SetBool(KeyNotifications, on)
}

// LastWeight returns the last bottle weight reported by the scale.
func (t *Tracker) LastWeight() (grams float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cg := t.store.Int(KeyLastWeight, -1)
	if cg < 0 {
		return 0, false
	}
	return float64(cg) / 100, true
}

// Apply folds one payload into the tracker.  Integers add ounces,
// "True" adds one serving, and a lighter bottle than last time counts
// the difference as drunk.  Other readings leave the state unchanged.
func (t *Tracker) Apply(r payload.Reading) (Change, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch r.Kind {
	case payload.KindInt:
		return t.addLocked(r.Int)
	case payload.KindBool:
		if r.Bool {
			return t.addLocked(ServingOz)
		}
	case payload.KindWeight:
		return t.weighLocked(r.Grams)
	}
	return Change{}, nil
}

func (t *Tracker) weighLocked(grams float64) (Change, error) {
	if grams < 0 || grams > MaxScaleGrams || math.IsNaN(grams) {
		return Change{}, nil
	}
	prev := t.store.Int(KeyLastWeight, -1)
	if err := t.store.SetInt(KeyLastWeight, int(math.Round(grams*100))); err != nil {
		return Change{}, err
	}
	if prev < 0 {
		return Change{}, nil
	}
	drop := float64(prev)/100 - grams
	if drop < MinDrinkGrams {
		return Change{}, nil
	}
	return t.addLocked(int(math.Round(drop / GramsPerOz)))
}
