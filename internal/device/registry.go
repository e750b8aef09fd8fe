package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache keyed by device ID and
// by owning config entry.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device // by device ID
	byEntry map[string]string  // config entry ID -> device ID
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:    repo,
		cache:   make(map[string]*Device),
		byEntry: make(map[string]string),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	r.byEntry = make(map[string]string, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = &d
		r.byEntry[d.ConfigEntryID] = d.ID
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Ensure returns the device of a config entry, creating it on first use.
// An existing device whose name differs is renamed.
func (r *Registry) Ensure(ctx context.Context, configEntryID, name string) (*Device, error) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if id, ok := r.byEntry[configEntryID]; ok {
		d := r.cache[id]
		if d.Name != name {
			if err := ValidateName(name); err != nil {
				return nil, err
			}
			if err := r.repo.UpdateName(ctx, id, name); err != nil {
				return nil, fmt.Errorf("renaming device: %w", err)
			}
			d.Name = name
		}
		c := *d
		return &c, nil
	}

	d := &Device{
		ID:            GenerateID(),
		ConfigEntryID: configEntryID,
		Name:          name,
		Manufacturer:  Manufacturer,
		Model:         Model,
	}
	if err := ValidateDevice(d); err != nil {
		return nil, err
	}
	if err := r.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("creating device: %w", err)
	}

	r.cache[d.ID] = d
	r.byEntry[configEntryID] = d.ID
	r.logger.Info("device created", "device_id", d.ID, "name", d.Name, "config_entry_id", configEntryID)

	c := *d
	return &c, nil
}

// GetDevice retrieves a device by ID from the cache.
func (r *Registry) GetDevice(id string) (*Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	d, ok := r.cache[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	c := *d
	return &c, nil
}

// GetByConfigEntry retrieves the device owned by a config entry.
func (r *Registry) GetByConfigEntry(configEntryID string) (*Device, error) {
	r.cacheMu.RLock()
	id, ok := r.byEntry[configEntryID]
	r.cacheMu.RUnlock()
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return r.GetDevice(id)
}

// ListDevices returns all devices sorted by name.
func (r *Registry) ListDevices() []Device {
	r.cacheMu.RLock()
	out := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		out = append(out, *d)
	}
	r.cacheMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RemoveByConfigEntry deletes the device of a config entry, if any.
func (r *Registry) RemoveByConfigEntry(ctx context.Context, configEntryID string) error {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	id, ok := r.byEntry[configEntryID]
	if !ok {
		return nil
	}
	if err := r.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrDeviceNotFound) {
		return fmt.Errorf("deleting device: %w", err)
	}
	delete(r.cache, id)
	delete(r.byEntry, configEntryID)

	r.logger.Info("device removed", "device_id", id, "config_entry_id", configEntryID)
	return nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
