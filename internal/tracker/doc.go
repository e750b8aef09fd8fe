// Package tracker is the medication_tracker integration.
//
// For every medication config entry it creates a device, a stock number
// entity backed by a medication.Ledger, and a days-remaining sensor
// backed by a medication.Estimator. Group entries are recorded as
// metadata only.
//
// The set of live medications is kept in an explicit Index that the
// integration writes and Services reads; nothing is stored in package
// globals. All ledger and estimator work runs on the entity.Loop.
package tracker
