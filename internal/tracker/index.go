package tracker

import (
	"sort"
	"sync"

	"github.com/nerrad567/medication-tracker/internal/medication"
)

// Medication is one set-up medication entry.
type Medication struct {
	EntryID        string
	StockEntityID  string
	SensorEntityID string
	DeviceID       string
	Ledger         *medication.Ledger
	Estimator      *medication.Estimator
}

// GroupInfo is a set-up group entry.
type GroupInfo struct {
	EntryID string   `json:"entry_id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// Index maps entity ids to live medications and records groups.
// It is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	byStock map[string]*Medication
	byEntry map[string]*Medication
	groups  map[string]GroupInfo
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		byStock: make(map[string]*Medication),
		byEntry: make(map[string]*Medication),
		groups:  make(map[string]GroupInfo),
	}
}

// Add registers a medication under its stock entity id and entry id.
func (x *Index) Add(m *Medication) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.byStock[m.StockEntityID] = m
	x.byEntry[m.EntryID] = m
}

// Remove drops the medication of entryID and returns it.
func (x *Index) Remove(entryID string) (*Medication, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	m, ok := x.byEntry[entryID]
	if !ok {
		return nil, false
	}
	delete(x.byEntry, entryID)
	delete(x.byStock, m.StockEntityID)
	return m, true
}

// ByStockEntity returns the medication whose stock entity is entityID.
func (x *Index) ByStockEntity(entityID string) (*Medication, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	m, ok := x.byStock[entityID]
	return m, ok
}

// ByEntry returns the medication of a config entry.
func (x *Index) ByEntry(entryID string) (*Medication, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	m, ok := x.byEntry[entryID]
	return m, ok
}

// StockEntityIDs returns the stock entity ids of every live medication,
// sorted.
func (x *Index) StockEntityIDs() []string {
	x.mu.RLock()
	ids := make([]string, 0, len(x.byStock))
	for id := range x.byStock {
		ids = append(ids, id)
	}
	x.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// AddGroup records a group entry.
func (x *Index) AddGroup(g GroupInfo) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.groups[g.EntryID] = g
}

// RemoveGroup forgets a group entry.
func (x *Index) RemoveGroup(entryID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.groups[entryID]
	delete(x.groups, entryID)
	return ok
}

// Groups returns every group sorted by name. Members are reported as
// stored, including ids of medications that no longer exist.
func (x *Index) Groups() []GroupInfo {
	x.mu.RLock()
	out := make([]GroupInfo, 0, len(x.groups))
	for _, g := range x.groups {
		g.Members = append([]string(nil), g.Members...)
		out = append(out, g)
	}
	x.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
