package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hackgods/petclinic-scheduling/internal/metrics"
)

// SlotClient answers which slots exist for a clinic on a date and whether
// each one is free. It never retries and never caches.
type SlotClient struct {
	source  SlotSource
	metrics *metrics.SchedulingMetrics
}

func NewSlotClient(source SlotSource, m *metrics.SchedulingMetrics) *SlotClient {
	return &SlotClient{source: source, metrics: m}
}

// FetchSlots returns the slots for clinicID on date in chronological order.
// An empty, non-nil slice means no slots are configured for that date.
func (c *SlotClient) FetchSlots(ctx context.Context, clinicID string, date time.Time) ([]Slot, error) {
	if blank(clinicID) {
		return nil, missing("clinic_id")
	}
	if date.IsZero() {
		return nil, missing("date")
	}

	raw, err := c.source.FetchSlots(ctx, clinicID, Day(date))
	if err != nil {
		c.metrics.ObserveSlotFetch("error")
		var re *RemoteError
		if !errors.As(err, &re) {
			err = &RemoteError{Message: "fetch slots", Err: err}
		}
		return nil, fmt.Errorf("fetch slots for clinic %s on %s: %w", clinicID, date.Format(time.DateOnly), err)
	}

	slots := make([]Slot, len(raw))
	for i, s := range raw {
		s.Timestamp = s.Timestamp.Truncate(time.Minute)
		slots[i] = s
	}
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Timestamp.Before(slots[j].Timestamp)
	})

	if len(slots) == 0 {
		c.metrics.ObserveSlotFetch("empty")
	} else {
		c.metrics.ObserveSlotFetch("ok")
	}
	return slots, nil
}
