// Package entity is the small host runtime the tracker's entities live in.
//
// It provides:
//   - Loop: a single goroutine that serialises all entity work, with
//     cancellable timers
//   - StateMachine: current entity states with per-entity and global
//     change subscriptions
//   - Registry: durable (domain, platform, unique_id) to entity id mapping
//   - RestoreStore: last known states, for restoring after a restart
//   - HistoryRepository: the per-entity log of state changes
//
// Entity ids have the form "domain.object_id", for example
// "number.aspirin_current_stock".
package entity
