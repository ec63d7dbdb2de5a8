package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRate(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		expected string
	}{
		{"normal", 45.7, "45.7 q/min"},
		{"zero", 0.0, "0.0 q/min"},
		{"very_small", 0.0001, "0.0 q/min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatRate(tt.rate))
		})
	}
}

func TestFormatLatency(t *testing.T) {
	tests := []struct {
		name     string
		ms       float64
		expected string
	}{
		{"milliseconds", 12.3, "12.3ms"},
		{"sub_millisecond", 0.1, "0.1ms"},
		{"seconds", 1234, "1.2s"},
		{"zero", 0, "0.0ms"},
		{"boundary", 1000, "1.0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatLatency(tt.ms))
		})
	}
}

func TestFormatPercentage(t *testing.T) {
	assert.Equal(t, "0.0%", FormatPercentage(0))
	assert.Equal(t, "45.7%", FormatPercentage(0.457))
	assert.Equal(t, "100.0%", FormatPercentage(1))
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", FormatCount(0))
	assert.Equal(t, "9999", FormatCount(9999))
	assert.Equal(t, "12.3k", FormatCount(12345))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		seconds  int64
		expected string
	}{
		{"minutes_only", 300, "5m"},
		{"hours_and_minutes", 8100, "2h 15m"},
		{"zero", 0, "0m"},
		{"negative", -60, "0m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.seconds))
		})
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "never", FormatAge(time.Time{}, now))
	assert.Equal(t, "1h 30m ago", FormatAge(now.Add(-90*time.Minute), now))
}
