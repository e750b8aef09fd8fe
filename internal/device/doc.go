// Package device provides the device registry for the medication tracker.
//
// Every medication config entry owns exactly one device. The device groups
// the medication's stock number and days-remaining sensor under a single
// name and is removed together with its config entry.
//
// # Architecture
//
//	┌──────────────────┐    ┌──────────────────┐    ┌──────────────────┐
//	│     Registry     │    │    Repository    │    │    Validation    │
//	│   (registry.go)  │───▶│  (repository.go) │    │ (validation.go)  │
//	│                  │    │                  │    │                  │
//	│ • Ensure/remove  │    │ • SQLite queries │    │ • Device checks  │
//	│ • In-memory cache│    │ • UNIQUE entry   │    │ • ID generation  │
//	└──────────────────┘    └──────────────────┘    └──────────────────┘
//
// # Usage
//
//	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	dev, err := registry.Ensure(ctx, entryID, "Aspirin")
package device
