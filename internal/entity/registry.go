package entity

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxObjectIDLength = 64

// Entry is a registered entity: the durable link between an integration's
// unique id and the public entity id users address.
type Entry struct {
	EntityID      string    `json:"entity_id"`
	Domain        string    `json:"domain"`
	Platform      string    `json:"platform"`
	UniqueID      string    `json:"unique_id"`
	ConfigEntryID string    `json:"config_entry_id,omitempty"`
	DeviceID      string    `json:"device_id,omitempty"`
	OriginalName  string    `json:"original_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// Registration describes an entity an integration wants to register.
type Registration struct {
	Domain        string
	Platform      string
	UniqueID      string
	ConfigEntryID string
	DeviceID      string
	// SuggestedObjectID seeds the entity id when the entity is new.
	SuggestedObjectID string
	OriginalName      string
}

type registryKey struct {
	domain, platform, uniqueID string
}

// Registry provides entity registration with an in-memory cache over a
// Repository. An entity keeps its entity id for as long as it stays
// registered, across restarts and reloads.
//
// All public methods are thread-safe.
type Registry struct {
	repo   Repository
	mu     sync.RWMutex
	byID   map[string]Entry
	byKey  map[registryKey]string
	logger Logger
}

// NewRegistry creates a registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		byID:   make(map[string]Entry),
		byKey:  make(map[registryKey]string),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all entries from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	entries, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading entity registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID = make(map[string]Entry, len(entries))
	r.byKey = make(map[registryKey]string, len(entries))
	for _, e := range entries {
		r.byID[e.EntityID] = e
		r.byKey[registryKey{e.Domain, e.Platform, e.UniqueID}] = e.EntityID
	}

	r.logger.Info("entity registry loaded", "count", len(entries))
	return nil
}

// GetOrCreate returns the entry for reg's (domain, platform, unique id),
// registering it with a fresh entity id if it does not exist yet.
func (r *Registry) GetOrCreate(ctx context.Context, reg Registration) (Entry, error) {
	if reg.Domain == "" || reg.Platform == "" || reg.UniqueID == "" {
		return Entry{}, fmt.Errorf("domain, platform and unique id are required")
	}
	key := registryKey{reg.Domain, reg.Platform, reg.UniqueID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[key]; ok {
		return r.byID[id], nil
	}

	entry := Entry{
		EntityID:      r.availableIDLocked(reg.Domain, reg.SuggestedObjectID, reg.UniqueID),
		Domain:        reg.Domain,
		Platform:      reg.Platform,
		UniqueID:      reg.UniqueID,
		ConfigEntryID: reg.ConfigEntryID,
		DeviceID:      reg.DeviceID,
		OriginalName:  reg.OriginalName,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.repo.Create(ctx, &entry); err != nil {
		return Entry{}, fmt.Errorf("registering %s: %w", entry.EntityID, err)
	}

	r.byID[entry.EntityID] = entry
	r.byKey[key] = entry.EntityID

	r.logger.Info("entity registered",
		"entity_id", entry.EntityID,
		"unique_id", entry.UniqueID,
		"config_entry_id", entry.ConfigEntryID,
	)
	return entry, nil
}

// availableIDLocked picks domain.slug, appending _2, _3, ... until unused.
func (r *Registry) availableIDLocked(domain, suggested, fallback string) string {
	object := Slugify(suggested)
	if object == "" {
		object = Slugify(fallback)
	}
	if object == "" {
		object = "unnamed"
	}

	base := domain + "." + object
	candidate := base
	for n := 2; ; n++ {
		if _, taken := r.byID[candidate]; !taken {
			return candidate
		}
		candidate = base + "_" + strconv.Itoa(n)
	}
}

// Resolve returns the entity id registered for (domain, platform, uniqueID).
func (r *Registry) Resolve(domain, platform, uniqueID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[registryKey{domain, platform, uniqueID}]
	return id, ok
}

// Get returns the entry for entityID.
func (r *Registry) Get(entityID string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[entityID]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	return e, nil
}

// List returns every entry ordered by entity id.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// ListByConfigEntry returns the entries owned by a config entry.
func (r *Registry) ListByConfigEntry(configEntryID string) []Entry {
	var out []Entry
	for _, e := range r.List() {
		if e.ConfigEntryID == configEntryID {
			out = append(out, e)
		}
	}
	return out
}

// Remove unregisters a single entity.
func (r *Registry) Remove(ctx context.Context, entityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[entityID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	if err := r.repo.Delete(ctx, entityID); err != nil {
		return fmt.Errorf("removing %s: %w", entityID, err)
	}
	delete(r.byID, entityID)
	delete(r.byKey, registryKey{e.Domain, e.Platform, e.UniqueID})
	return nil
}

// RemoveConfigEntry unregisters every entity owned by a config entry and
// returns their ids.
func (r *Registry) RemoveConfigEntry(ctx context.Context, configEntryID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.repo.DeleteByConfigEntry(ctx, configEntryID); err != nil {
		return nil, fmt.Errorf("removing entities of %s: %w", configEntryID, err)
	}

	var removed []string
	for id, e := range r.byID {
		if e.ConfigEntryID != configEntryID {
			continue
		}
		delete(r.byID, id)
		delete(r.byKey, registryKey{e.Domain, e.Platform, e.UniqueID})
		removed = append(removed, id)
	}
	sort.Strings(removed)
	return removed, nil
}

// Slugify lowercases s and reduces it to [a-z0-9_], collapsing runs of
// other characters into a single underscore.
func Slugify(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	slug := b.String()
	if len(slug) > maxObjectIDLength {
		slug = strings.TrimRight(slug[:maxObjectIDLength], "_")
	}
	return slug
}

// SplitEntityID splits "domain.object_id", validating both halves.
func SplitEntityID(entityID string) (domain, objectID string, err error) {
	domain, objectID, ok := strings.Cut(entityID, ".")
	if !ok || domain == "" || objectID == "" || Slugify(domain) != domain || Slugify(objectID) != objectID {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidEntityID, entityID)
	}
	return domain, objectID, nil
}
