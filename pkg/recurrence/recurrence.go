// Package recurrence expands serializable recurrence rules into future
// occurrence instants. Rules are pure data: expansion is a function of
// (rule, cursor) and can be restarted from any instant, there is no
// stateful iterator.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/now"
	"github.com/robfig/cron/v3"
)

// Frequency selects the expansion strategy of a rule.
type Frequency string

const (
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCron    Frequency = "cron"
)

// Validation errors.
var (
	ErrNoWeekdays      = errors.New("recurrence: weekly rule needs at least one weekday")
	ErrBadDayOfMonth   = errors.New("recurrence: day of month must be between 1 and 31")
	ErrUnknownTimezone = errors.New("recurrence: unknown timezone")
)

// monthScanLimit bounds the monthly search; a valid rule always matches
// within two months, the guard only protects against corrupted rules.
const monthScanLimit = 48

// Rule describes a repeating schedule: an anchor instant, a frequency, a
// selector and an optional end. Rules serialize to JSON and are stored
// alongside the post they drive.
type Rule struct {
	Frequency Frequency `json:"frequency"`

	// Anchor is the first candidate instant; its wall-clock time of day in
	// Timezone is the time of day of every occurrence.
	Anchor time.Time `json:"anchor"`

	// Timezone is the IANA zone the wall-clock arithmetic happens in.
	// Empty means UTC.
	Timezone string `json:"timezone,omitempty"`

	// Weekdays selects the days of a weekly rule.
	Weekdays []time.Weekday `json:"weekdays,omitempty"`

	// DayOfMonth selects the day of a monthly rule. A day greater than the
	// days in a short month rolls to that month's last day.
	DayOfMonth int `json:"day_of_month,omitempty"`

	// CronExpr holds the expression of a cron rule (standard 5-field form).
	CronExpr string `json:"cron_expr,omitempty"`

	// Until, when set, is the inclusive upper bound: no occurrence is ever
	// produced after it.
	Until *time.Time `json:"until,omitempty"`
}

// Option customizes a rule at construction time.
type Option func(*Rule)

// Until bounds the rule: no occurrence after t is produced.
func Until(t time.Time) Option {
	return func(r *Rule) {
		u := t.UTC()
		r.Until = &u
	}
}

// InZone sets the IANA zone the rule's wall-clock arithmetic happens in.
func InZone(zone string) Option {
	return func(r *Rule) {
		r.Timezone = zone
	}
}

// Weekly builds a rule that fires on the given weekdays at the anchor's
// time of day.
func Weekly(anchor time.Time, weekdays []time.Weekday, opts ...Option) (*Rule, error) {
	if len(weekdays) == 0 {
		return nil, ErrNoWeekdays
	}
	r := &Rule{
		Frequency: FrequencyWeekly,
		Anchor:    anchor.UTC(),
		Weekdays:  append([]time.Weekday(nil), weekdays...),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, r.validate()
}

// Monthly builds a rule that fires on the given day of every month at the
// anchor's time of day.
func Monthly(anchor time.Time, dayOfMonth int, opts ...Option) (*Rule, error) {
	if dayOfMonth < 1 || dayOfMonth > 31 {
		return nil, ErrBadDayOfMonth
	}
	r := &Rule{
		Frequency:  FrequencyMonthly,
		Anchor:     anchor.UTC(),
		DayOfMonth: dayOfMonth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, r.validate()
}

// Cron builds a rule from a standard 5-field cron expression.
func Cron(anchor time.Time, expr string, opts ...Option) (*Rule, error) {
	if _, err := cronParser().Parse(expr); err != nil {
		return nil, fmt.Errorf("recurrence: invalid cron expression %q: %w", expr, err)
	}
	r := &Rule{
		Frequency: FrequencyCron,
		Anchor:    anchor.UTC(),
		CronExpr:  expr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, r.validate()
}

func cronParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
}

func (r *Rule) validate() error {
	if _, err := r.location(); err != nil {
		return err
	}
	return nil
}

func (r *Rule) location() (*time.Location, error) {
	if r.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, r.Timezone)
	}
	return loc, nil
}

// Next returns the first occurrence strictly after the given instant.
// Occurrences are never before the anchor and never after Until when set;
// ok is false once the rule is exhausted.
func (r *Rule) Next(after time.Time) (time.Time, bool) {
	loc, err := r.location()
	if err != nil {
		return time.Time{}, false
	}

	// Clamp the cursor so every candidate after it is also >= anchor.
	if floor := r.Anchor.Add(-time.Nanosecond); after.Before(floor) {
		after = floor
	}

	var next time.Time
	switch r.Frequency {
	case FrequencyWeekly:
		next = r.nextWeekly(after, loc)
	case FrequencyMonthly:
		next = r.nextMonthly(after, loc)
	case FrequencyCron:
		next = r.nextCron(after, loc)
	default:
		return time.Time{}, false
	}

	if next.IsZero() {
		return time.Time{}, false
	}
	if r.Until != nil && next.After(*r.Until) {
		return time.Time{}, false
	}
	return next.UTC(), true
}

func (r *Rule) nextWeekly(after time.Time, loc *time.Location) time.Time {
	anchor := r.Anchor.In(loc)
	cursor := after.In(loc)

	days := make(map[time.Weekday]bool, len(r.Weekdays))
	for _, d := range r.Weekdays {
		days[d] = true
	}

	// At most 8 calendar days separate any instant from the next selected
	// weekday at the anchor's time of day.
	for i := 0; i <= 8; i++ {
		day := cursor.AddDate(0, 0, i)
		candidate := time.Date(day.Year(), day.Month(), day.Day(),
			anchor.Hour(), anchor.Minute(), anchor.Second(), 0, loc)
		if candidate.After(after) && days[candidate.Weekday()] {
			return candidate
		}
	}
	return time.Time{}
}

func (r *Rule) nextMonthly(after time.Time, loc *time.Location) time.Time {
	anchor := r.Anchor.In(loc)
	cursor := after.In(loc)

	for i := 0; i < monthScanLimit; i++ {
		first := time.Date(cursor.Year(), cursor.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, i, 0)
		day := r.DayOfMonth
		if last := now.New(first).EndOfMonth().Day(); day > last {
			day = last
		}
		candidate := time.Date(first.Year(), first.Month(), day,
			anchor.Hour(), anchor.Minute(), anchor.Second(), 0, loc)
		if candidate.After(after) {
			return candidate
		}
	}
	return time.Time{}
}

func (r *Rule) nextCron(after time.Time, loc *time.Location) time.Time {
	sched, err := cronParser().Parse(r.CronExpr)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(after.In(loc))
}

// Expand returns up to maxCount occurrences strictly after the given
// instant, in strictly increasing order.
func (r *Rule) Expand(after time.Time, maxCount int) []time.Time {
	var out []time.Time
	cursor := after
	for len(out) < maxCount {
		next, ok := r.Next(cursor)
		if !ok {
			break
		}
		out = append(out, next)
		cursor = next
	}
	return out
}
