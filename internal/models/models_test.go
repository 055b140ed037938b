package models

import "testing"

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name string
		p    Progress
		want int
	}{
		{"three of ten", Progress{CurrentStep: 3, TotalSteps: 10}, 30},
		{"one of five", Progress{CurrentStep: 1, TotalSteps: 5}, 20},
		{"done", Progress{CurrentStep: 7, TotalSteps: 7}, 100},
		{"zero total", Progress{CurrentStep: 2, TotalSteps: 0}, 0},
		{"not started", Progress{CurrentStep: 0, TotalSteps: 4}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Percent(); got != tt.want {
				t.Errorf("Percent() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []TaskStatus{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []TaskStatus{StatusQueued, StatusRunning} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}
