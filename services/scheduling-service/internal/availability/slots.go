// Package availability turns a weekly template and the appointments already
// on a day into the ordered list of free slot starts.
package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

type interval struct {
	start model.Minute
	end   model.Minute
}

// Resolve returns the free slot starts of date for tpl, in ascending order.
//
// occupied holds the start of every non-cancelled appointment on date; each
// blocks one slot of tpl.SlotMinutes. Days before the owner's local today
// have no availability, and on today itself only starts after the current
// local minute are offered. now is read in the template's zone only.
func Resolve(tpl model.Template, date model.Date, occupied []model.Minute, now time.Time) []model.Minute {
	loc, err := tpl.Location()
	if err != nil || tpl.SlotMinutes <= 0 {
		return nil
	}
	local := now.In(loc)
	today := model.DateOf(local)
	if date.Before(today) {
		return nil
	}
	after := model.Minute(-1)
	if date == today {
		after = model.MinuteOf(local)
	}

	step := model.Minute(tpl.SlotMinutes)
	busy := make([]interval, 0, len(occupied))
	for _, m := range occupied {
		busy = append(busy, interval{start: m, end: m + step})
	}

	seen := map[model.Minute]bool{}
	var slots []model.Minute
	for _, r := range tpl.Ranges[date.Weekday()] {
		for t := r.Start; t+step <= r.End; t += step {
			if t <= after || seen[t] {
				continue
			}
			if !overlapsAny(t, t+step, busy) {
				seen[t] = true
				slots = append(slots, t)
			}
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}

// Contains reports whether m is one of slots.
func Contains(slots []model.Minute, m model.Minute) bool {
	i := sort.Search(len(slots), func(i int) bool { return slots[i] >= m })
	return i < len(slots) && slots[i] == m
}

func overlapsAny(start, end model.Minute, busy []interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.start,b.end) iff start < b.end && b.start < end.
		if start < b.end && b.start < end {
			return true
		}
	}
	return false
}
