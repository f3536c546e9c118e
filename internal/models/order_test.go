package models

import (
	"testing"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in      string
		want    OrderStatus
		wantErr bool
	}{
		{"incoming", StatusIncoming, false},
		{"preparing", StatusPreparing, false},
		{"ready", StatusReady, false},
		{"completed", StatusCompleted, false},
		{"served", StatusCompleted, false},
		{"SERVED", StatusCompleted, false},
		{"cancelled", StatusCancelled, false},
		{"canceled", StatusCancelled, false},
		{"  ready  ", StatusReady, false},
		{"pending", "", true},
		{"", "", true},
	}

	for _, tc := range cases {
		got, err := ParseStatus(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseStatus(%q): expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseStatus(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanTransitionTo(t *testing.T) {
	allowed := []struct{ from, to OrderStatus }{
		{StatusIncoming, StatusPreparing},
		{StatusIncoming, StatusReady},
		{StatusIncoming, StatusCompleted},
		{StatusIncoming, StatusCancelled},
		{StatusPreparing, StatusReady},
		{StatusPreparing, StatusCompleted},
		{StatusPreparing, StatusCancelled},
		{StatusReady, StatusCompleted},
		{StatusReady, StatusCancelled},
	}

	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to OrderStatus }{
		{StatusReady, StatusIncoming},
		{StatusPreparing, StatusIncoming},
		{StatusReady, StatusPreparing},
		{StatusCompleted, StatusReady},
		{StatusCompleted, StatusCancelled},
		{StatusCancelled, StatusIncoming},
		{StatusCancelled, StatusCompleted},
		{StatusIncoming, StatusIncoming},
	}

	for _, tc := range forbidden {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be rejected", tc.from, tc.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []OrderStatus{StatusIncoming, StatusPreparing, StatusReady} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []OrderStatus{StatusCompleted, StatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
