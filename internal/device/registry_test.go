package device

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device
	// For testing error paths
	createErr error
	deleteErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{devices: make(map[string]*Device)}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		c := *d
		return &c, nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d)
	}
	return out, nil
}

func (m *MockRepository) Create(_ context.Context, d *Device) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.devices {
		if existing.ConfigEntryID == d.ConfigEntryID {
			return ErrDeviceExists
		}
	}
	c := *d
	m.devices[d.ID] = &c
	return nil
}

func (m *MockRepository) UpdateName(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.Name = name
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func TestRegistry_EnsureCreatesOnce(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	first, err := reg.Ensure(ctx, "entry1", "Aspirin")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if first.Manufacturer != Manufacturer || first.Model != Model {
		t.Errorf("metadata = %q/%q", first.Manufacturer, first.Model)
	}

	second, err := reg.Ensure(ctx, "entry1", "Aspirin")
	if err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Ensure() created a second device: %s vs %s", second.ID, first.ID)
	}
	if reg.GetDeviceCount() != 1 {
		t.Errorf("GetDeviceCount() = %d, want 1", reg.GetDeviceCount())
	}
}

func TestRegistry_EnsureRenames(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	d, _ := reg.Ensure(ctx, "entry1", "Aspirin")
	if _, err := reg.Ensure(ctx, "entry1", "Aspirin 75mg"); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	stored, _ := repo.GetByID(ctx, d.ID)
	if stored.Name != "Aspirin 75mg" {
		t.Errorf("stored name = %q", stored.Name)
	}
}

func TestRegistry_EnsureValidates(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	if _, err := reg.Ensure(context.Background(), "entry1", "  "); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Ensure() error = %v, want ErrInvalidName", err)
	}
	if _, err := reg.Ensure(context.Background(), "", "Aspirin"); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("Ensure() error = %v, want ErrInvalidDevice", err)
	}
}

func TestRegistry_CreateErrorLeavesCacheEmpty(t *testing.T) {
	repo := NewMockRepository()
	repo.createErr = errors.New("disk full")
	reg := NewRegistry(repo)

	if _, err := reg.Ensure(context.Background(), "entry1", "Aspirin"); err == nil {
		t.Fatal("Ensure() error = nil")
	}
	if _, err := reg.GetByConfigEntry("entry1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByConfigEntry() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_RemoveByConfigEntry(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	d, _ := reg.Ensure(ctx, "entry1", "Aspirin")
	reg.Ensure(ctx, "entry2", "Ibuprofen") //nolint:errcheck // covered elsewhere

	if err := reg.RemoveByConfigEntry(ctx, "entry1"); err != nil {
		t.Fatalf("RemoveByConfigEntry() error = %v", err)
	}
	if _, err := reg.GetDevice(d.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice() error = %v, want ErrDeviceNotFound", err)
	}
	if err := reg.RemoveByConfigEntry(ctx, "entry1"); err != nil {
		t.Errorf("second RemoveByConfigEntry() error = %v", err)
	}
	if got := reg.ListDevices(); len(got) != 1 || got[0].Name != "Ibuprofen" {
		t.Errorf("ListDevices() = %+v", got)
	}
}

func TestRegistry_RefreshCache(t *testing.T) {
	repo := NewMockRepository()
	ctx := context.Background()
	NewRegistry(repo).Ensure(ctx, "entry1", "Aspirin") //nolint:errcheck

	reg := NewRegistry(repo)
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	d, err := reg.GetByConfigEntry("entry1")
	if err != nil {
		t.Fatalf("GetByConfigEntry() error = %v", err)
	}
	if d.Name != "Aspirin" {
		t.Errorf("Name = %q", d.Name)
	}
}
