package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNow_AlwaysUTC(t *testing.T) {
	now := Now()

	assert.Equal(t, time.UTC, now.Location())
}

func TestParseMySQLUTC(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *time.Time
	}{
		{name: "empty", input: ""},
		{name: "zero flag", input: "0"},
		{name: "zero date", input: "0000-00-00 00:00:00"},
		{name: "garbage", input: "next tuesday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, ParseMySQLUTC(tt.input))
		})
	}

	t.Run("valid", func(t *testing.T) {
		got := ParseMySQLUTC("2025-11-20 12:30:45")
		require.NotNil(t, got)
		assert.True(t, got.Equal(time.Date(2025, 11, 20, 12, 30, 45, 0, time.UTC)))
	})
}

func TestInLocation(t *testing.T) {
	instant := time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, instant, InLocation(instant, nil))

	loc := time.FixedZone("UTC-5", -5*3600)
	local := InLocation(instant, loc)
	assert.Equal(t, 7, local.Hour())
	assert.True(t, local.Equal(instant))
}

func TestLoadLocation(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation(""))
	assert.Equal(t, time.UTC, LoadLocation("Not/AZone"))
}
