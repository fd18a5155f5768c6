// Package schedule computes spaced-repetition due dates for studied topics.
// All functions are pure; the caller persists the returned records.
package schedule

import (
	"time"

	"github.com/conorfennell/studypal/internal/domain"
)

const (
	// FirstIntervalDays is the interval assigned when a topic is first studied.
	FirstIntervalDays = 1
	// MaxIntervalDays caps interval growth.
	MaxIntervalDays = 30
)

// FirstReview creates the review item for a freshly committed study record,
// due one day after base.
func FirstReview(chatID string, studyID int64, topic string, base time.Time) domain.ReviewItem {
	return domain.ReviewItem{
		ChatID:       chatID,
		StudyID:      studyID,
		Topic:        topic,
		IntervalDays: FirstIntervalDays,
		DueAt:        base.AddDate(0, 0, FirstIntervalDays),
		LastResult:   domain.ReviewUnset,
	}
}

// RecordOutcome applies one review outcome. A remembered item doubles its
// interval up to MaxIntervalDays; a forgotten item drops back to one day.
// The new due date is always now plus the new interval.
func RecordOutcome(item domain.ReviewItem, remembered bool, now time.Time) domain.ReviewItem {
	if remembered {
		item.IntervalDays = min(item.IntervalDays*2, MaxIntervalDays)
		item.LastResult = domain.ReviewRemembered
	} else {
		item.IntervalDays = FirstIntervalDays
		item.LastResult = domain.ReviewForgot
	}
	item.DueAt = now.AddDate(0, 0, item.IntervalDays)
	return item
}

// PickDueOrNext selects the item to present for a nudge: the earliest-due
// item among those already due, or the soonest upcoming item when nothing is
// due yet. Ties on the due date go to the lowest record ID so repeated calls
// are reproducible. Returns nil only for an empty candidate set.
func PickDueOrNext(candidates []domain.ReviewItem, now time.Time) *domain.ReviewItem {
	var due, next *domain.ReviewItem
	for i := range candidates {
		c := &candidates[i]
		if !c.DueAt.After(now) && earlier(c, due) {
			due = c
		}
		if earlier(c, next) {
			next = c
		}
	}
	if due != nil {
		picked := *due
		return &picked
	}
	if next != nil {
		picked := *next
		return &picked
	}
	return nil
}

func earlier(a, b *domain.ReviewItem) bool {
	if b == nil {
		return true
	}
	if !a.DueAt.Equal(b.DueAt) {
		return a.DueAt.Before(b.DueAt)
	}
	return a.ID < b.ID
}
