package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/draymont/passage-core/internal/adapter"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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
// It wraps a Repository and adds an in-memory cache for fast lookups;
// the ingest path hits GetDevice on every submission, so lookups must
// not round-trip to SQLite.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
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
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = &d
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by ID.
// Returns ErrNotFound if the device does not exist.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		cpy := *cached
		return &cpy, nil
	}

	// Fall back to repository (might be a new device not yet cached)
	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	cpy := *d
	r.cache[id] = &cpy
	r.cacheMu.Unlock()

	return d, nil
}

// ListDevices retrieves all devices.
// The returned devices are copies; callers can safely modify them.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		devices := make([]Device, 0, len(r.cache))
		for _, d := range r.cache {
			devices = append(devices, *d)
		}
		return devices, nil
	}

	return r.repo.List(ctx)
}

// ListByAdapterType retrieves all devices served by a vendor integration.
func (r *Registry) ListByAdapterType(ctx context.Context, t adapter.Type) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		var devices []Device
		for _, d := range r.cache {
			if d.AdapterType == t {
				devices = append(devices, *d)
			}
		}
		return devices, nil
	}

	return r.repo.ListByAdapterType(ctx, t)
}

// CreateDevice validates and persists a new device.
// An empty ID is filled with a generated UUID.
func (r *Registry) CreateDevice(ctx context.Context, d *Device) error {
	if d.Name == "" {
		return ErrInvalidName
	}
	if !d.AdapterType.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAdapterType, d.AdapterType)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	cpy := *d
	r.cache[d.ID] = &cpy
	r.cacheMu.Unlock()

	r.logger.Info("device registered",
		"device_id", d.ID,
		"name", d.Name,
		"adapter_type", string(d.AdapterType),
	)
	return nil
}

// UpdateDevice validates and persists changes to an existing device.
func (r *Registry) UpdateDevice(ctx context.Context, d *Device) error {
	if d.Name == "" {
		return ErrInvalidName
	}
	if !d.AdapterType.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAdapterType, d.AdapterType)
	}

	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	cpy := *d
	r.cache[d.ID] = &cpy
	r.cacheMu.Unlock()

	return nil
}

// MarkSeen records that a device has just spoken to the platform.
// Called on every accepted event submission.
func (r *Registry) MarkSeen(ctx context.Context, id string, at time.Time) error {
	if err := r.repo.UpdatePresence(ctx, id, true, at); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if d, ok := r.cache[id]; ok {
		d.Online = true
		seen := at.UTC()
		d.LastSeen = &seen
	}
	r.cacheMu.Unlock()
	return nil
}

// MarkOffline flags a device as unreachable. Devices are never deleted;
// this is the decommissioning path as well as the health-failure path.
func (r *Registry) MarkOffline(ctx context.Context, id string) error {
	now := time.Now().UTC()

	r.cacheMu.RLock()
	d, ok := r.cache[id]
	var lastSeen time.Time
	if ok && d.LastSeen != nil {
		lastSeen = *d.LastSeen
	} else {
		lastSeen = now
	}
	r.cacheMu.RUnlock()

	if err := r.repo.UpdatePresence(ctx, id, false, lastSeen); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if d, ok := r.cache[id]; ok {
		d.Online = false
	}
	r.cacheMu.Unlock()

	r.logger.Warn("device marked offline", "device_id", id)
	return nil
}

// WebhookSecret returns the per-device HMAC key for ingest authentication.
// Returns ErrNotFound for unknown devices.
func (r *Registry) WebhookSecret(ctx context.Context, id string) (string, error) {
	d, err := r.GetDevice(ctx, id)
	if err != nil {
		return "", err
	}
	return d.WebhookSecret, nil
}

// DeviceCount returns the number of cached devices.
func (r *Registry) DeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
