package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "90s", want: 90 * time.Second},
		{in: "2m", want: 2 * time.Minute},
		{in: "30", want: 30 * time.Second},
		{in: " 5s ", want: 5 * time.Second},
		{in: "-1s", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration())
		})
	}
}

func TestSecret_NeverPrints(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.NotContains(t, fmt.Sprintf("%v %+v %#v %s", s, s, s, s), "sk-live-123")

	data, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-live-123")

	assert.Equal(t, "sk-live-123", s.Value())
	assert.True(t, s.IsSet())
	assert.Equal(t, "", Secret("").String())
}

func TestSecret_EnvReference(t *testing.T) {
	t.Setenv("FILINGQA_TEST_KEY", "from-env")

	var s Secret
	require.NoError(t, s.UnmarshalText([]byte("env:FILINGQA_TEST_KEY")))
	assert.Equal(t, "from-env", s.Value())

	assert.Error(t, s.UnmarshalText([]byte("env:FILINGQA_TEST_KEY_UNSET")))

	require.NoError(t, s.UnmarshalText([]byte("plain")))
	assert.Equal(t, "plain", s.Value())
}
