package ingest

import (
	"testing"
	"time"
)

func TestExtractDeadline(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "labeled iso date",
			text: "Deadline: 2026-03-15. Apply via the portal.",
			want: "2026-03-15",
		},
		{
			name: "labeled day month year",
			text: "The closing date is 4 September 2026 at 16:00 UK time.",
			want: "2026-09-04",
		},
		{
			name: "labeled with ordinal suffix",
			text: "Applications close on the 21st March 2026.",
			want: "2026-03-21",
		},
		{
			name: "apply by slash format",
			text: "Apply by 30/11/2026 to be considered for this round.",
			want: "2026-11-30",
		},
		{
			name: "month day year",
			text: "Submissions due March 15, 2026.",
			want: "2026-03-15",
		},
		{
			name: "unlabeled date fallback",
			text: "The award ceremony takes place on 12 June 2026 in London.",
			want: "2026-06-12",
		},
		{
			name: "label preferred over earlier date",
			text: "Published 1 January 2026. Deadline: 28 February 2026.",
			want: "2026-02-28",
		},
		{
			name: "impossible date rejected",
			text: "Deadline: 31 February 2026.",
			want: "",
		},
		{
			name: "invalid iso date does not mask a later valid one",
			text: "Deadline: 2026-02-30, extended to 2026-03-02.",
			want: "2026-03-02",
		},
		{
			name: "invalid month-name date does not mask a later valid one",
			text: "Originally 31 February 2026, now closing 2 March 2026.",
			want: "2026-03-02",
		},
		{
			name: "two digit year rejected",
			text: "Closes 12/05/26.",
			want: "",
		},
		{
			name: "no date",
			text: "Funding for early career researchers in the humanities.",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractDeadline(tt.text)
			if got != tt.want {
				t.Errorf("ExtractDeadline(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestFirstDateInPicksEarliest(t *testing.T) {
	text := "Results announced March 1, 2027. Opens 2026-05-01 for entries."
	got := firstDateIn(text)
	// 2026-05-01 appears later in the string than the March date, so the
	// March date wins on position.
	if got != "2027-03-01" {
		t.Errorf("firstDateIn = %q, want 2027-03-01", got)
	}
}

func TestDeadlineBefore(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		deadline string
		want     bool
	}{
		{"2026-03-14", true},
		{"2026-03-15", false}, // same day counts until end of day
		{"2026-03-16", false},
		{"not-a-date", false},
	}
	for _, tt := range tests {
		if got := deadlineBefore(tt.deadline, now); got != tt.want {
			t.Errorf("deadlineBefore(%q) = %v, want %v", tt.deadline, got, tt.want)
		}
	}
}
