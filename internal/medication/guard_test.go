package medication

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyGuard(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	g := DailyGuard{Location: loc}

	morning := time.Date(2026, 3, 10, 8, 0, 0, 0, loc)

	assert.False(t, g.Allow(morning, morning.Add(10*time.Hour)), "same day")
	assert.True(t, g.Allow(morning, morning.Add(24*time.Hour)), "next day")

	lateNight := time.Date(2026, 3, 10, 23, 59, 0, 0, loc)
	assert.True(t, g.Allow(lateNight, lateNight.Add(2*time.Minute)), "across midnight")
}

func TestDailyGuard_UsesSiteTimezone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 14:00 and 16:00 UTC straddle midnight in Tokyo.
	last := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	now := last.Add(2 * time.Hour)

	assert.True(t, DailyGuard{Location: tokyo}.Allow(last, now))
	assert.False(t, DailyGuard{Location: time.UTC}.Allow(last, now))
}

func TestCooldownGuard(t *testing.T) {
	g := CooldownGuard{Cooldown: time.Minute}
	last := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	assert.False(t, g.Allow(last, last.Add(59*time.Second)))
	assert.True(t, g.Allow(last, last.Add(time.Minute)))
}

func TestNewDoseGuard(t *testing.T) {
	g, err := NewDoseGuard("", 0, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "daily", g.Name())

	g, err = NewDoseGuard("cooldown", time.Minute, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "cooldown", g.Name())

	_, err = NewDoseGuard("cooldown", 0, time.UTC)
	assert.Error(t, err)

	_, err = NewDoseGuard("hourly", time.Minute, time.UTC)
	assert.Error(t, err)
}
