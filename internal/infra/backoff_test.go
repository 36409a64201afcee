package infra

import (
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: 60 * time.Second, Max: 10 * time.Minute}

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{-1, 60 * time.Second},
		{0, 60 * time.Second},
		{1, 120 * time.Second},
		{2, 240 * time.Second},
		{3, 480 * time.Second},
		{4, 10 * time.Minute},   // capped
		{100, 10 * time.Minute}, // still capped
	}

	for _, tt := range tests {
		if got := b.Delay(tt.retryCount); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.retryCount, got, tt.want)
		}
	}
}
