// Package rotation maps wall-clock time to the active rotation window of a
// loot pool type. Resets follow a weekly schedule expressed in legislated
// local clock time, so the reset hour differs between standard and
// daylight-saving time.
package rotation

import (
	"errors"
	"sync"
	"time"
)

// PoolType identifies one of the rotating loot catalogs.
type PoolType string

// Known pool types.
const (
	PoolTypeLRItem     PoolType = "lr_item"
	PoolTypeRaidAspect PoolType = "raid_aspect"
	PoolTypeRaidTome   PoolType = "raid_tome"
)

// PoolTypes returns every known pool type.
func PoolTypes() []PoolType {
	return []PoolType{PoolTypeLRItem, PoolTypeRaidAspect, PoolTypeRaidTome}
}

// Valid reports whether t names a known pool type.
func (t PoolType) Valid() bool {
	switch t {
	case PoolTypeLRItem, PoolTypeRaidAspect, PoolTypeRaidTome:
		return true
	}
	return false
}

// Regions returns the legal region set for the pool type.
func (t PoolType) Regions() []string {
	switch t {
	case PoolTypeLRItem:
		return []string{"Sky", "Molten", "SE", "Canyon", "Corkus"}
	case PoolTypeRaidAspect, PoolTypeRaidTome:
		return []string{"TNA", "TCC", "NOL", "NOTG"}
	}
	return nil
}

// RegionValid reports whether region is legal for the pool type.
func (t PoolType) RegionValid(region string) bool {
	for _, r := range t.Regions() {
		if r == region {
			return true
		}
	}
	return false
}

// Schedule describes the weekly reset of a pool type: the reset weekday and
// the local reset hours in the reference timezone.
type Schedule struct {
	Weekday    time.Weekday
	WinterHour int
	SummerHour int
	Location   *time.Location
}

// Window is one rotation occurrence, half-open: [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// NearBoundary reports whether t lies within tolerance of either window
// boundary. Submissions made this close to a rotation flip may be observing
// either rotation and get discounted.
func (w Window) NearBoundary(t time.Time, tolerance time.Duration) bool {
	return absDuration(t.Sub(w.Start)) <= tolerance || absDuration(t.Sub(w.End)) <= tolerance
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// ErrInvalidTime is returned when the supplied timestamp carries no usable
// clock information.
var ErrInvalidTime = errors.New("rotation: timestamp carries no usable clock information")

// The reset hours below both coincide with 18:00 UTC, the historical global
// reset instant: 13:00 EST in winter, 14:00 EDT in summer.
const (
	resetWeekday = time.Friday
	winterHour   = 13
	summerHour   = 14
)

var loadReference = sync.OnceValues(func() (*time.Location, error) {
	return time.LoadLocation("America/New_York")
})

// ScheduleFor returns the reset schedule for the pool type. All current pool
// types share the weekly global reset.
func ScheduleFor(t PoolType) (Schedule, error) {
	loc, err := loadReference()
	if err != nil {
		return Schedule{}, err
	}
	switch t {
	case PoolTypeLRItem, PoolTypeRaidAspect, PoolTypeRaidTome:
		return Schedule{Weekday: resetWeekday, WinterHour: winterHour, SummerHour: summerHour, Location: loc}, nil
	}
	return Schedule{}, errors.New("rotation: unknown pool type " + string(t))
}

// Resolve computes the rotation window containing now, shifted by whole
// rotations: shift 0 is the current window, -1 the previous, +1 the next.
// The reset hour is recomputed after shifting, so a shift crossing a
// daylight-saving boundary uses the correct hour for the shifted date.
func Resolve(sched Schedule, now time.Time, shift int) (Window, error) {
	if now.IsZero() {
		return Window{}, ErrInvalidTime
	}

	local := now.In(sched.Location)

	// Most recent occurrence of the reset weekday on or before today.
	back := int(local.Weekday() - sched.Weekday)
	if back < 0 {
		back += 7
	}
	candidate := local.AddDate(0, 0, -back)

	// Same weekday but before the reset hour: previous occurrence applies.
	if local.Before(sched.resetInstant(candidate)) {
		candidate = candidate.AddDate(0, 0, -7)
	}

	candidate = candidate.AddDate(0, 0, 7*shift)
	return Window{
		Start: sched.resetInstant(candidate),
		End:   sched.resetInstant(candidate.AddDate(0, 0, 7)),
	}, nil
}

// resetInstant is the reset time on the given local date. Daylight saving is
// probed at local noon so the answer is stable across the early-morning
// transition itself.
func (s Schedule) resetInstant(day time.Time) time.Time {
	noon := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, s.Location)
	hour := s.WinterHour
	if noon.IsDST() {
		hour = s.SummerHour
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, s.Location)
}
