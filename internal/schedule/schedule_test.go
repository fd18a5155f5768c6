package schedule

import (
	"testing"
	"time"

	"github.com/conorfennell/studypal/internal/domain"
)

func TestFirstReview(t *testing.T) {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	item := FirstReview("chat-1", 42, "EOQ", base)

	if item.IntervalDays != 1 {
		t.Errorf("Expected interval 1, but got %d", item.IntervalDays)
	}
	if !item.DueAt.Equal(base.AddDate(0, 0, 1)) {
		t.Errorf("Expected due date %v, but got %v", base.AddDate(0, 0, 1), item.DueAt)
	}
	if item.LastResult != domain.ReviewUnset {
		t.Errorf("Expected unset last result, but got %q", item.LastResult)
	}
	if item.StudyID != 42 || item.Topic != "EOQ" || item.ChatID != "chat-1" {
		t.Errorf("Unexpected item fields: %+v", item)
	}
}

func TestRecordOutcome(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name             string
		interval         int
		remembered       bool
		expectedInterval int
	}{
		{"remembered doubles", 1, true, 2},
		{"remembered doubles again", 4, true, 8},
		{"remembered caps at 30", 16, true, 30},
		{"remembered stays capped", 30, true, 30},
		{"forgot resets from 1", 1, false, 1},
		{"forgot resets from 8", 8, false, 1},
		{"forgot resets from 30", 30, false, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			item := domain.ReviewItem{IntervalDays: tc.interval}
			updated := RecordOutcome(item, tc.remembered, now)

			if updated.IntervalDays != tc.expectedInterval {
				t.Errorf("Expected interval %d, but got %d", tc.expectedInterval, updated.IntervalDays)
			}
			expectedDue := now.AddDate(0, 0, tc.expectedInterval)
			if !updated.DueAt.Equal(expectedDue) {
				t.Errorf("Expected due date %v, but got %v", expectedDue, updated.DueAt)
			}
			expectedResult := domain.ReviewForgot
			if tc.remembered {
				expectedResult = domain.ReviewRemembered
			}
			if updated.LastResult != expectedResult {
				t.Errorf("Expected last result %q, but got %q", expectedResult, updated.LastResult)
			}
		})
	}
}

func TestRecordOutcomeDoublingSweep(t *testing.T) {
	now := time.Now()
	for i := 1; i <= 30; i++ {
		remembered := RecordOutcome(domain.ReviewItem{IntervalDays: i}, true, now)
		expected := i * 2
		if expected > 30 {
			expected = 30
		}
		if remembered.IntervalDays != expected {
			t.Errorf("interval %d remembered: expected %d, got %d", i, expected, remembered.IntervalDays)
		}

		forgot := RecordOutcome(domain.ReviewItem{IntervalDays: i}, false, now)
		if forgot.IntervalDays != 1 {
			t.Errorf("interval %d forgot: expected 1, got %d", i, forgot.IntervalDays)
		}
	}
}

func TestPickDueOrNext(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	day := func(offset int) time.Time { return now.AddDate(0, 0, offset) }

	t.Run("empty set returns nil", func(t *testing.T) {
		if picked := PickDueOrNext(nil, now); picked != nil {
			t.Errorf("Expected nil for empty candidates, but got %+v", picked)
		}
	})

	t.Run("earliest due item wins", func(t *testing.T) {
		candidates := []domain.ReviewItem{
			{ID: 1, Topic: "a", DueAt: day(-1)},
			{ID: 2, Topic: "b", DueAt: day(-3)},
			{ID: 3, Topic: "c", DueAt: day(2)},
		}
		picked := PickDueOrNext(candidates, now)
		if picked == nil || picked.ID != 2 {
			t.Fatalf("Expected item 2, but got %+v", picked)
		}
	})

	t.Run("nothing due returns soonest upcoming", func(t *testing.T) {
		candidates := []domain.ReviewItem{
			{ID: 1, DueAt: day(5)},
			{ID: 2, DueAt: day(2)},
		}
		picked := PickDueOrNext(candidates, now)
		if picked == nil || picked.ID != 2 {
			t.Fatalf("Expected item 2, but got %+v", picked)
		}
	})

	t.Run("equal due dates break on lowest id", func(t *testing.T) {
		candidates := []domain.ReviewItem{
			{ID: 7, DueAt: day(-1)},
			{ID: 3, DueAt: day(-1)},
			{ID: 5, DueAt: day(-1)},
		}
		picked := PickDueOrNext(candidates, now)
		if picked == nil || picked.ID != 3 {
			t.Fatalf("Expected item 3, but got %+v", picked)
		}
	})

	t.Run("item due exactly now counts as due", func(t *testing.T) {
		candidates := []domain.ReviewItem{
			{ID: 1, DueAt: now},
			{ID: 2, DueAt: day(1)},
		}
		picked := PickDueOrNext(candidates, now)
		if picked == nil || picked.ID != 1 {
			t.Fatalf("Expected item 1, but got %+v", picked)
		}
	})

	t.Run("non-empty set never returns nil", func(t *testing.T) {
		candidates := []domain.ReviewItem{{ID: 1, DueAt: day(30)}}
		if picked := PickDueOrNext(candidates, now); picked == nil {
			t.Fatal("Expected a pick from a non-empty set, but got nil")
		}
	})
}
