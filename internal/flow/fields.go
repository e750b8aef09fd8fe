package flow

import "github.com/nerrad567/medication-tracker/internal/medication"

// dosageValues validates the dosage fields. Missing fields fall back to
// defaults when given (the options flow), otherwise they are required.
func dosageValues(input, defaults map[string]any) (map[string]any, map[string]string) {
	values := map[string]any{}
	errs := map[string]string{}

	for _, key := range []string{medication.KeyPillsPerDose, medication.KeyDosesPerDay} {
		src := withDefault(input, defaults, key)
		v, code := number(src, key, true)
		if code == "" && v <= 0 {
			code = ErrCodeNotPositive
		}
		if code != "" {
			errs[key] = code
			continue
		}
		values[key] = v
	}

	refill, code := positiveInt(withDefault(input, defaults, medication.KeyRefillAmount), medication.KeyRefillAmount, medication.DefaultRefillAmount)
	if code != "" {
		errs[medication.KeyRefillAmount] = code
	} else {
		values[medication.KeyRefillAmount] = refill
	}
	return values, errs
}

func withDefault(input, defaults map[string]any, key string) map[string]any {
	if _, ok := input[key]; ok || defaults == nil {
		return input
	}
	if v, ok := defaults[key]; ok {
		return map[string]any{key: v}
	}
	return input
}

// number reads a finite number from input[key].
func number(input map[string]any, key string, required bool) (float64, string) {
	raw, ok := input[key]
	if !ok || raw == nil || raw == "" {
		if required {
			return 0, ErrCodeRequired
		}
		return 0, ""
	}
	d, err := medication.ToDecimal(raw)
	if err != nil {
		return 0, ErrCodeInvalidNumber
	}
	f, _ := d.Float64()
	return f, ""
}

// positiveInt reads an optional positive whole number, returning def when
// the field is absent.
func positiveInt(input map[string]any, key string, def int) (int, string) {
	raw, ok := input[key]
	if !ok || raw == nil || raw == "" {
		return def, ""
	}
	d, err := medication.ToDecimal(raw)
	if err != nil {
		return 0, ErrCodeInvalidNumber
	}
	if !d.IsInteger() {
		return 0, ErrCodeNotInteger
	}
	if !d.IsPositive() {
		return 0, ErrCodeNotPositive
	}
	return int(d.IntPart()), ""
}

func intDefault(v any, def int) int {
	if v == nil {
		return def
	}
	d, err := medication.ToDecimal(v)
	if err != nil || !d.IsInteger() || !d.IsPositive() {
		return def
	}
	return int(d.IntPart())
}

// dailyConsumption is the convenience copy stored on the entry. Ledgers
// recompute it from the two factors.
func dailyConsumption(values map[string]any) float64 {
	ppd, _ := medication.ToDecimal(values[medication.KeyPillsPerDose])
	dpd, _ := medication.ToDecimal(values[medication.KeyDosesPerDay])
	f, _ := ppd.Mul(dpd).Round(4).Float64()
	return f
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		if list == "" {
			return nil, true
		}
		return []string{list}, true
	default:
		return nil, false
	}
}
