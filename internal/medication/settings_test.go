package medication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEntryData() map[string]any {
	return map[string]any{
		KeyName:         "Aspirin",
		KeyInitialStock: 60.0,
		KeyPillsPerDose: 1.0,
		KeyDosesPerDay:  2.0,
	}
}

func TestParseSettings_Defaults(t *testing.T) {
	s, err := ParseSettings(validEntryData(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Aspirin", s.Name)
	assert.Equal(t, "60", s.InitialStock.String())
	assert.Equal(t, "2", s.DailyConsumption().String())
	assert.Equal(t, DefaultLowStockDays, s.LowStockDays)
	assert.Equal(t, DefaultRefillAmount, s.RefillAmount)
}

func TestParseSettings_OptionsOverrideData(t *testing.T) {
	data := validEntryData()
	data[KeyDailyConsumption] = 99.0

	s, err := ParseSettings(data, map[string]any{
		KeyPillsPerDose: 0.5,
		KeyLowStockDays: 14,
	})
	require.NoError(t, err)

	assert.Equal(t, "1", s.DailyConsumption().String(), "rate is derived, not read from the entry")
	assert.Equal(t, 14, s.LowStockDays)
}

func TestParseSettings_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{name: "missing name", mutate: func(m map[string]any) { delete(m, KeyName) }},
		{name: "blank name", mutate: func(m map[string]any) { m[KeyName] = "  " }},
		{name: "negative stock", mutate: func(m map[string]any) { m[KeyInitialStock] = -1 }},
		{name: "zero pills per dose", mutate: func(m map[string]any) { m[KeyPillsPerDose] = 0 }},
		{name: "missing doses per day", mutate: func(m map[string]any) { delete(m, KeyDosesPerDay) }},
		{name: "fractional threshold", mutate: func(m map[string]any) { m[KeyLowStockDays] = 2.5 }},
		{name: "zero refill", mutate: func(m map[string]any) { m[KeyRefillAmount] = 0 }},
		{name: "non-numeric stock", mutate: func(m map[string]any) { m[KeyInitialStock] = "lots" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validEntryData()
			tt.mutate(data)

			_, err := ParseSettings(data, nil)
			assert.ErrorIs(t, err, ErrSetupFailure)
		})
	}
}

func TestParseGroup(t *testing.T) {
	g, err := ParseGroup(map[string]any{
		KeyName:    "Morning",
		KeyMembers: []any{"number.aspirin_current_stock", "number.vitamin_d_current_stock"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Morning", g.Name)
	assert.Len(t, g.Members, 2)

	_, err = ParseGroup(map[string]any{KeyName: "Empty", KeyMembers: []string{}})
	assert.ErrorIs(t, err, ErrSetupFailure)

	_, err = ParseGroup(map[string]any{KeyName: "Bad", KeyMembers: []any{42}})
	assert.ErrorIs(t, err, ErrSetupFailure)

	_, err = ParseGroup(map[string]any{KeyMembers: []string{"number.x"}})
	assert.ErrorIs(t, err, ErrSetupFailure)
}
