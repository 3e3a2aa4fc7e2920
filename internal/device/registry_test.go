package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/draymont/passage-core/internal/adapter"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device
	// For testing error paths
	createErr error
	updateErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		devices: make(map[string]*Device),
	}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.devices[id]; ok {
		cpy := *d
		return &cpy, nil
	}
	return nil, ErrNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d)
	}
	return devices, nil
}

func (m *MockRepository) ListByAdapterType(_ context.Context, t adapter.Type) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var devices []Device
	for _, d := range m.devices {
		if d.AdapterType == t {
			devices = append(devices, *d)
		}
	}
	return devices, nil
}

func (m *MockRepository) Create(_ context.Context, d *Device) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[d.ID]; exists {
		return ErrExists
	}
	cpy := *d
	m.devices[d.ID] = &cpy
	return nil
}

func (m *MockRepository) Update(_ context.Context, d *Device) error {
	if m.updateErr != nil {
		return m.updateErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[d.ID]; !exists {
		return ErrNotFound
	}
	cpy := *d
	m.devices[d.ID] = &cpy
	return nil
}

func (m *MockRepository) UpdatePresence(_ context.Context, id string, online bool, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, exists := m.devices[id]
	if !exists {
		return ErrNotFound
	}
	d.Online = online
	seen := lastSeen.UTC()
	d.LastSeen = &seen
	return nil
}

func (m *MockRepository) addDevice(d *Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := *d
	m.devices[d.ID] = &cpy
}

func testDevice(id, name string) *Device {
	return &Device{
		ID:            id,
		Name:          name,
		AdapterType:   adapter.TypeStub,
		Host:          "127.0.0.1",
		Port:          80,
		WebhookSecret: "secret-" + id,
	}
}

func TestRegistry_RefreshCache(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	repo.addDevice(testDevice("dev-1", "Entrance Reader"))
	repo.addDevice(testDevice("dev-2", "Lobby Turnstile"))

	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if registry.DeviceCount() != 2 {
		t.Errorf("DeviceCount() = %d, want 2", registry.DeviceCount())
	}
}

func TestRegistry_GetDevice(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	repo.addDevice(testDevice("dev-get", "Test Reader"))
	registry.RefreshCache(ctx)

	t.Run("returns device from cache", func(t *testing.T) {
		got, err := registry.GetDevice(ctx, "dev-get")
		if err != nil {
			t.Fatalf("GetDevice() error = %v", err)
		}
		if got.ID != "dev-get" {
			t.Errorf("ID = %q, want %q", got.ID, "dev-get")
		}
	})

	t.Run("returns ErrNotFound for nonexistent", func(t *testing.T) {
		_, err := registry.GetDevice(ctx, "nonexistent")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetDevice() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("returned copy does not mutate cache", func(t *testing.T) {
		got, _ := registry.GetDevice(ctx, "dev-get")
		got.Name = "Tampered"

		again, _ := registry.GetDevice(ctx, "dev-get")
		if again.Name != "Test Reader" {
			t.Errorf("Name = %q, cache was mutated through returned copy", again.Name)
		}
	})
}

func TestRegistry_CreateDevice(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	t.Run("creates device with generated ID", func(t *testing.T) {
		d := &Device{
			Name:        "New Reader",
			AdapterType: adapter.TypeHikvision,
		}
		if err := registry.CreateDevice(ctx, d); err != nil {
			t.Fatalf("CreateDevice() error = %v", err)
		}
		if d.ID == "" {
			t.Error("ID was not generated")
		}

		got, err := registry.GetDevice(ctx, d.ID)
		if err != nil {
			t.Fatalf("GetDevice() error = %v", err)
		}
		if got.Name != "New Reader" {
			t.Errorf("Name = %q, want %q", got.Name, "New Reader")
		}
	})

	t.Run("rejects empty name", func(t *testing.T) {
		err := registry.CreateDevice(ctx, &Device{AdapterType: adapter.TypeStub})
		if !errors.Is(err, ErrInvalidName) {
			t.Errorf("CreateDevice() error = %v, want ErrInvalidName", err)
		}
	})

	t.Run("rejects unknown adapter type", func(t *testing.T) {
		err := registry.CreateDevice(ctx, &Device{Name: "X", AdapterType: "betamax"})
		if !errors.Is(err, ErrInvalidAdapterType) {
			t.Errorf("CreateDevice() error = %v, want ErrInvalidAdapterType", err)
		}
	})

	t.Run("returns error for duplicate ID", func(t *testing.T) {
		d1 := testDevice("dup-id", "First")
		if err := registry.CreateDevice(ctx, d1); err != nil {
			t.Fatalf("first CreateDevice() error = %v", err)
		}
		err := registry.CreateDevice(ctx, testDevice("dup-id", "Second"))
		if !errors.Is(err, ErrExists) {
			t.Errorf("CreateDevice() error = %v, want ErrExists", err)
		}
	})
}

func TestRegistry_Presence(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	d := testDevice("dev-presence", "Reader")
	repo.addDevice(d)
	registry.RefreshCache(ctx)

	seen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := registry.MarkSeen(ctx, "dev-presence", seen); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}

	got, _ := registry.GetDevice(ctx, "dev-presence")
	if !got.Online {
		t.Error("Online = false after MarkSeen")
	}
	if got.LastSeen == nil || !got.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, seen)
	}

	if err := registry.MarkOffline(ctx, "dev-presence"); err != nil {
		t.Fatalf("MarkOffline() error = %v", err)
	}
	got, _ = registry.GetDevice(ctx, "dev-presence")
	if got.Online {
		t.Error("Online = true after MarkOffline")
	}
	// Last seen survives decommissioning.
	if got.LastSeen == nil || !got.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v after MarkOffline, want %v", got.LastSeen, seen)
	}
}

func TestRegistry_WebhookSecret(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	repo.addDevice(testDevice("dev-hmac", "Reader"))
	registry.RefreshCache(ctx)

	secret, err := registry.WebhookSecret(ctx, "dev-hmac")
	if err != nil {
		t.Fatalf("WebhookSecret() error = %v", err)
	}
	if secret != "secret-dev-hmac" {
		t.Errorf("WebhookSecret() = %q, want %q", secret, "secret-dev-hmac")
	}

	if _, err := registry.WebhookSecret(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("WebhookSecret(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestDevice_AdapterContext(t *testing.T) {
	d := &Device{
		ID:       "dev-ctx",
		Host:     "10.0.0.5",
		Port:     8000,
		Username: "admin",
		Password: "hunter2",
	}

	got := d.AdapterContext()
	if got.DeviceID != "dev-ctx" || got.Host != "10.0.0.5" || got.Port != 8000 {
		t.Errorf("AdapterContext() = %+v", got)
	}
	if got.Username != "admin" || got.Password != "hunter2" {
		t.Error("AdapterContext() dropped credentials")
	}
}
