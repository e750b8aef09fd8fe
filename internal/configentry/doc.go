// Package configentry stores configuration entries and drives their
// lifecycle.
//
// An entry is created by the setup wizard and holds the data the user
// entered plus any options edited later. The Manager persists entries,
// hands them to a Handler for setup and unload, and records the outcome
// on the entry. A failed setup marks only that entry as setup_error;
// every other entry keeps running.
package configentry
