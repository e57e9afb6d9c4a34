package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"30s":  30 * time.Second,
		"90":   90 * time.Second,
		"7d":   7 * 24 * time.Hour,
		" 5m ": 5 * time.Minute,
		"50ms": 50 * time.Millisecond,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDuration("xd")
	assert.Error(t, err)
}

func TestGetRandomString(t *testing.T) {
	a := GetRandomString(32)
	b := GetRandomString(32)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^[a-zA-Z0-9]+$`, a)
}

func TestUnixMilli(t *testing.T) {
	assert.True(t, UnixMilli(0).IsZero())
	assert.Equal(t, time.UTC, UnixMilli(1700000000000).Location())
}
