package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextReset(t *testing.T) {
	// 2026-03-02 10:30 KST
	now := time.Date(2026, 3, 2, 10, 30, 0, 0, kst)

	tests := []struct {
		name string
		at   string
		want time.Time
	}{
		{
			name: "later today",
			at:   "15:30",
			want: time.Date(2026, 3, 2, 15, 30, 0, 0, kst),
		},
		{
			name: "already passed rolls to tomorrow",
			at:   "09:00",
			want: time.Date(2026, 3, 3, 9, 0, 0, 0, kst),
		},
		{
			name: "exact current minute rolls to tomorrow",
			at:   "10:30",
			want: time.Date(2026, 3, 3, 10, 30, 0, 0, kst),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextReset(now, tt.at)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}

func TestNextResetConvertsFromOtherZones(t *testing.T) {
	// 01:00 UTC is 10:00 KST, so an 09:00 reset has already passed.
	now := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	got, err := nextReset(now, "09:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 3, 3, 9, 0, 0, 0, kst)))
}

func TestNextResetInvalidFormat(t *testing.T) {
	_, err := nextReset(time.Now(), "25:99")
	require.Error(t, err)
}
