// Package medication implements pill stock tracking for a single medication.
//
// A Ledger owns the pill count. It accepts manual corrections
// (SetQuantity), dose consumption guarded against accidental repeats
// (TakeDose), and refills (AddStock), and publishes a Reading after every
// accepted change.
//
// An Estimator turns the ledger's published quantity into days of supply
// remaining. It locates the ledger's entity through a Directory and
// follows its changes through a StockSource, so it never holds a pointer
// to the Ledger itself:
//
//	est := medication.NewEstimator(medication.EstimatorConfig{
//	    StockUniqueID: entryID + medication.StockSuffix,
//	    Settings:      settings,
//	    Directory:     registry,
//	    Source:        states,
//	    Scheduler:     loop,
//	    Publish:       func(e medication.Estimate) { ... },
//	})
//	est.Start()
//	defer est.Close()
//
// Quantities use shopspring/decimal so repeated half-pill doses do not
// accumulate binary rounding error.
package medication
