package domain

import (
	"testing"
	"time"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestInterestInterval_PeriodFrom(t *testing.T) {
	tests := []struct {
		name        string
		interval    InterestInterval
		start       string
		expectedEnd string
	}{
		{
			name:        "end of day",
			interval:    IntervalEndOfDay,
			start:       "2024-12-03T14:00:00Z",
			expectedEnd: "2024-12-03T23:59:59Z",
		},
		{
			name:        "end of month",
			interval:    IntervalEndOfMonth,
			start:       "2024-12-03T14:00:00Z",
			expectedEnd: "2024-12-31T23:59:59Z",
		},
		{
			name:        "end of february non-leap",
			interval:    IntervalEndOfMonth,
			start:       "2023-02-10T00:00:00Z",
			expectedEnd: "2023-02-28T23:59:59Z",
		},
		{
			name:        "end of february leap",
			interval:    IntervalEndOfMonth,
			start:       "2024-02-10T00:00:00Z",
			expectedEnd: "2024-02-29T23:59:59Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.interval.PeriodFrom(ts(tt.start))

			if !p.End.Equal(ts(tt.expectedEnd)) {
				t.Errorf("expected end %s, got %s", tt.expectedEnd, p.End)
			}
			if !p.Start.Equal(ts(tt.start)) {
				t.Errorf("expected start %s, got %s", tt.start, p.Start)
			}
		})
	}
}

func TestPeriod_Next(t *testing.T) {
	p := IntervalEndOfMonth.PeriodFrom(ts("2024-12-03T14:00:00Z"))
	next := p.Next()

	if !next.Start.Equal(ts("2025-01-01T00:00:00Z")) {
		t.Errorf("expected next start 2025-01-01T00:00:00Z, got %s", next.Start)
	}
	if !next.End.Equal(ts("2025-01-31T23:59:59Z")) {
		t.Errorf("expected next end 2025-01-31T23:59:59Z, got %s", next.End)
	}
}

func TestPeriod_Truncate(t *testing.T) {
	p := IntervalEndOfMonth.PeriodFrom(ts("2024-12-03T00:00:00Z"))

	tests := []struct {
		name        string
		latestEnd   string
		expectNil   bool
		expectedEnd string
	}{
		{
			name:      "before start yields nil",
			latestEnd: "2024-12-02T00:00:00Z",
			expectNil: true,
		},
		{
			name:        "inside period shortens end",
			latestEnd:   "2024-12-15T12:00:00Z",
			expectedEnd: "2024-12-15T12:00:00Z",
		},
		{
			name:        "after end leaves end unchanged",
			latestEnd:   "2025-02-01T00:00:00Z",
			expectedEnd: "2024-12-31T23:59:59Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Truncate(ts(tt.latestEnd))

			if tt.expectNil {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected period, got nil")
			}
			if !got.End.Equal(ts(tt.expectedEnd)) {
				t.Errorf("expected end %s, got %s", tt.expectedEnd, got.End)
			}
		})
	}
}

func TestPeriod_Days(t *testing.T) {
	tests := []struct {
		name     string
		interval InterestInterval
		start    string
		expected int
	}{
		{name: "end of day counts one", interval: IntervalEndOfDay, start: "2024-12-03T14:00:00Z", expected: 1},
		{name: "partial month", interval: IntervalEndOfMonth, start: "2024-12-03T00:00:00Z", expected: 29},
		{name: "full month", interval: IntervalEndOfMonth, start: "2024-12-01T00:00:00Z", expected: 31},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.interval.PeriodFrom(ts(tt.start))
			if got := p.Days(); got != tt.expected {
				t.Errorf("expected %d days, got %d", tt.expected, got)
			}
		})
	}
}
