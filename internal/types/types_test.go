package types

import (
	"testing"
)

func TestTicketValidate(t *testing.T) {
	tests := []struct {
		name    string
		ticket  Ticket
		wantErr bool
	}{
		{
			name:   "valid ticket",
			ticket: Ticket{ID: "PROJ-1", Title: "Add login page", Status: StatusReady},
		},
		{
			name:    "missing id",
			ticket:  Ticket{Title: "Add login page", Status: StatusReady},
			wantErr: true,
		},
		{
			name:    "missing title",
			ticket:  Ticket{ID: "PROJ-1", Status: StatusReady},
			wantErr: true,
		},
		{
			name:    "invalid status",
			ticket:  Ticket{ID: "PROJ-1", Title: "Add login page", Status: "bogus"},
			wantErr: true,
		},
		{
			name:    "negative review round",
			ticket:  Ticket{ID: "PROJ-1", Title: "Add login page", Status: StatusReady, ReviewRound: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ticket.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    TicketStatus
		to      TicketStatus
		allowed bool
	}{
		{StatusReady, StatusInProgress, true},
		{StatusReady, StatusFailed, true},
		{StatusReady, StatusInReview, false},
		{StatusInProgress, StatusInReview, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusApproved, false},
		{StatusInReview, StatusInReview, true},
		{StatusInReview, StatusChangesNeeded, true},
		{StatusInReview, StatusApproved, true},
		// A human merging the request outside the loop retires the ticket
		{StatusInReview, StatusMerged, true},
		{StatusChangesNeeded, StatusMerged, false},
		{StatusChangesNeeded, StatusInProgress, true},
		{StatusChangesNeeded, StatusApproved, false},
		{StatusApproved, StatusMerged, true},
		{StatusApproved, StatusFailed, true},
		{StatusMerged, StatusReady, false},
		{StatusMerged, StatusFailed, false},
		{StatusFailed, StatusReady, true},
		{StatusFailed, StatusInProgress, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("%s → %s: got %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestStatusIsValid(t *testing.T) {
	valid := []TicketStatus{
		StatusReady, StatusInProgress, StatusInReview, StatusChangesNeeded,
		StatusApproved, StatusMerged, StatusFailed,
	}
	for _, s := range valid {
		if !s.IsValid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if TicketStatus("open").IsValid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestIsTerminal(t *testing.T) {
	if !StatusMerged.IsTerminal() {
		t.Error("merged should be terminal")
	}
	if !StatusFailed.IsTerminal() {
		t.Error("failed should be terminal")
	}
	if StatusInReview.IsTerminal() {
		t.Error("in_review should not be terminal")
	}
}

func TestBranchName(t *testing.T) {
	if got := BranchName("autodev", "PROJ-42"); got != "autodev/PROJ-42" {
		t.Errorf("BranchName() = %q", got)
	}
}

func TestCompareTicketIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"PROJ-1", "PROJ-2", -1},
		{"PROJ-2", "PROJ-1", 1},
		{"PROJ-3", "PROJ-3", 0},
		// Numeric suffix comparison, not lexicographic
		{"PROJ-9", "PROJ-10", -1},
		{"PROJ-100", "PROJ-20", 1},
		// Different prefixes fall back to string order
		{"ALPHA-5", "BETA-1", -1},
		// Non-numeric suffixes fall back to string order
		{"abc", "abd", -1},
	}

	for _, tt := range tests {
		got := CompareTicketIDs(tt.a, tt.b)
		if (got < 0) != (tt.want < 0) || (got > 0) != (tt.want > 0) {
			t.Errorf("CompareTicketIDs(%q, %q) = %d, want sign of %d", tt.a, tt.b, got, tt.want)
		}
	}
}
