// Package schedule computes the fulfillment timetable for a paid order.
// It is a pure function of the order snapshot so it can be tested without
// the store or a real clock.
package schedule

import (
	"time"

	"github.com/cicekpazari/orderservice/pkg/model"
	"github.com/cicekpazari/orderservice/pkg/timeutil"
)

// Transition is a pending automated status change and the Istanbul
// wall-clock instant it becomes due.
type Transition struct {
	Status model.Status
	At     time.Time
}

// Track times on the delivery date, Istanbul wall clock. Overnight orders
// follow the noon track the next day.
type trackTime struct {
	status model.Status
	hour   int
	minute int
}

var (
	noonTrack = []trackTime{
		{model.StatusProcessing, 11, 0},
		{model.StatusShipped, 12, 0},
		{model.StatusDelivered, 18, 0},
	}
	eveningTrack = []trackTime{
		{model.StatusProcessing, 18, 0},
		{model.StatusShipped, 19, 0},
		{model.StatusDelivered, 22, 30},
	}
)

// ResolveTimeGroup returns the stored time group when valid, otherwise
// recomputes it from the hour the order was placed.
func ResolveTimeGroup(o *model.Order) model.TimeGroup {
	if model.ValidTimeGroup(o.TimeGroup) {
		return o.TimeGroup
	}
	return model.TimeGroupForHour(timeutil.CivilHour(o.CreatedAt))
}

// Pending returns the forward-remaining transitions for an order, in
// order. An order without a resolvable delivery date, or whose status is
// outside the automated track, has no pending transitions.
func Pending(o *model.Order) []Transition {
	dateKey := timeutil.NormalizeDeliveryDate(o.Delivery.Date)
	if dateKey == "" {
		return nil
	}
	day, err := time.ParseInLocation(timeutil.DateKeyLayout, dateKey, timeutil.Location())
	if err != nil {
		return nil
	}

	rank := model.StatusRank(o.Status)
	if rank < 0 || rank >= model.StatusRank(model.StatusDelivered) {
		return nil
	}

	track := noonTrack
	if ResolveTimeGroup(o) == model.TimeGroupEvening {
		track = eveningTrack
	}

	var out []Transition
	for _, tt := range track {
		if model.StatusRank(tt.status) <= rank {
			continue
		}
		out = append(out, Transition{
			Status: tt.status,
			At:     time.Date(day.Year(), day.Month(), day.Day(), tt.hour, tt.minute, 0, 0, timeutil.Location()),
		})
	}
	return out
}
