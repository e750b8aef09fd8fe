package medication

import "errors"

// Errors for the medication package. Callers check them with errors.Is:
//
//	if errors.Is(err, medication.ErrDuplicateDose) {
//	    // dose was already taken within the guard window
//	}
var (
	// ErrInvalidValue is returned when a quantity is non-numeric, not
	// finite, or outside the accepted range.
	ErrInvalidValue = errors.New("medication: invalid value")

	// ErrDuplicateDose is returned when the dose guard rejects take_dose.
	ErrDuplicateDose = errors.New("medication: duplicate dose")

	// ErrMissingTarget is returned when an action names no entity or an
	// entity that is not a stock ledger of this integration.
	ErrMissingTarget = errors.New("medication: missing target")

	// ErrUnavailableSource means the stock entity has no numeric value.
	ErrUnavailableSource = errors.New("medication: stock source unavailable")

	// ErrSetupFailure is returned when a config entry cannot be turned into
	// a ledger or group.
	ErrSetupFailure = errors.New("medication: setup failed")
)
