package medication

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Config entry keys written by the setup wizard.
const (
	KeyName             = "name"
	KeyInitialStock     = "initial_stock"
	KeyPillsPerDose     = "pills_per_dose"
	KeyDosesPerDay      = "doses_per_day"
	KeyDailyConsumption = "daily_consumption"
	KeyLowStockDays     = "low_stock_days"
	KeyRefillAmount     = "refill_amount"
	KeyMembers          = "members"
)

// Defaults applied when an entry omits the optional fields.
const (
	DefaultLowStockDays = 7
	DefaultRefillAmount = 30
)

// Settings are the validated parameters of one medication.
type Settings struct {
	Name         string
	InitialStock decimal.Decimal
	PillsPerDose decimal.Decimal
	DosesPerDay  decimal.Decimal
	LowStockDays int
	RefillAmount int
}

// DailyConsumption is pills per dose times doses per day. It is always
// derived here, never read back from the entry's convenience copy.
func (s Settings) DailyConsumption() decimal.Decimal {
	return s.PillsPerDose.Mul(s.DosesPerDay)
}

// ParseSettings builds Settings from a config entry's data, with options
// overriding data key by key. Any missing or invalid required field is
// reported as ErrSetupFailure.
func ParseSettings(data, options map[string]any) (Settings, error) {
	merged := make(map[string]any, len(data)+len(options))
	for k, v := range data {
		merged[k] = v
	}
	for k, v := range options {
		merged[k] = v
	}

	var s Settings
	var problems []string

	name, _ := merged[KeyName].(string)
	s.Name = strings.TrimSpace(name)
	if s.Name == "" {
		problems = append(problems, "name is required")
	}

	var err error
	if s.InitialStock, err = requireDecimal(merged, KeyInitialStock); err != nil {
		problems = append(problems, err.Error())
	} else if s.InitialStock.IsNegative() {
		problems = append(problems, "initial_stock must not be negative")
	}

	if s.PillsPerDose, err = requireDecimal(merged, KeyPillsPerDose); err != nil {
		problems = append(problems, err.Error())
	} else if !s.PillsPerDose.IsPositive() {
		problems = append(problems, "pills_per_dose must be positive")
	}

	if s.DosesPerDay, err = requireDecimal(merged, KeyDosesPerDay); err != nil {
		problems = append(problems, err.Error())
	} else if !s.DosesPerDay.IsPositive() {
		problems = append(problems, "doses_per_day must be positive")
	}

	if s.LowStockDays, err = optionalPositiveInt(merged, KeyLowStockDays, DefaultLowStockDays); err != nil {
		problems = append(problems, err.Error())
	}
	if s.RefillAmount, err = optionalPositiveInt(merged, KeyRefillAmount, DefaultRefillAmount); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return Settings{}, fmt.Errorf("%w: %s", ErrSetupFailure, strings.Join(problems, "; "))
	}
	return s, nil
}

func requireDecimal(m map[string]any, key string) (decimal.Decimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return decimal.Zero, fmt.Errorf("%s is required", key)
	}
	d, err := ToDecimal(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %v", key, err)
	}
	return d, nil
}

func optionalPositiveInt(m map[string]any, key string, def int) (int, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return def, nil
	}
	d, err := ToDecimal(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %v", key, err)
	}
	if !d.IsInteger() || !d.IsPositive() {
		return 0, fmt.Errorf("%s must be a positive whole number", key)
	}
	return int(d.IntPart()), nil
}

// Group is a named set of stock entity ids. It carries no behaviour: no
// aggregate stock, and members that disappear are simply left dangling.
type Group struct {
	Name    string
	Members []string
}

// ParseGroup builds a Group from a group entry's data.
func ParseGroup(data map[string]any) (Group, error) {
	name, _ := data[KeyName].(string)
	g := Group{Name: strings.TrimSpace(name)}
	if g.Name == "" {
		return Group{}, fmt.Errorf("%w: group name is required", ErrSetupFailure)
	}

	switch members := data[KeyMembers].(type) {
	case []string:
		g.Members = append(g.Members, members...)
	case []any:
		for _, m := range members {
			id, ok := m.(string)
			if !ok || id == "" {
				return Group{}, fmt.Errorf("%w: group member %v is not an entity id", ErrSetupFailure, m)
			}
			g.Members = append(g.Members, id)
		}
	case nil:
	default:
		return Group{}, fmt.Errorf("%w: members must be a list", ErrSetupFailure)
	}

	if len(g.Members) == 0 {
		return Group{}, fmt.Errorf("%w: group needs at least one member", ErrSetupFailure)
	}
	return g, nil
}
