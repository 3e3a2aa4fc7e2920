package stub

import (
	"context"
	"errors"
	"testing"

	"github.com/draymont/passage-core/internal/adapter"
)

func testDevice(id string) adapter.DeviceContext {
	return adapter.DeviceContext{DeviceID: id, Host: "127.0.0.1"}
}

func TestAdapter_Discover(t *testing.T) {
	a := New()

	devices, err := a.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len(devices) = %d, want 2", len(devices))
	}
	for _, d := range devices {
		if d.Status != adapter.DeviceStatusOnline {
			t.Errorf("device %s status = %q, want online", d.ID, d.Status)
		}
	}

	// Discovery is deterministic: same IDs every call.
	again, _ := a.Discover(context.Background())
	if devices[0].ID != again[0].ID || devices[1].ID != again[1].ID {
		t.Error("Discover() returned different device IDs across calls")
	}
}

func TestAdapter_SendCommand(t *testing.T) {
	a := New()
	ctx := context.Background()

	t.Run("valid operation succeeds", func(t *testing.T) {
		result, err := a.SendCommand(ctx, testDevice("dev-1"), adapter.Command{
			Operation: adapter.OpUnlockDoor,
		})
		if err != nil {
			t.Fatalf("SendCommand() error = %v", err)
		}
		if !result.Success {
			t.Error("Success = false, want true")
		}
		if result.ExecutedAt.IsZero() {
			t.Error("ExecutedAt is zero")
		}
	})

	t.Run("missing device identifier is invalid", func(t *testing.T) {
		_, err := a.SendCommand(ctx, adapter.DeviceContext{}, adapter.Command{
			Operation: adapter.OpReboot,
		})
		if !errors.Is(err, adapter.ErrInvalidCommand) {
			t.Errorf("SendCommand() error = %v, want ErrInvalidCommand", err)
		}
	})

	t.Run("unknown operation is invalid", func(t *testing.T) {
		_, err := a.SendCommand(ctx, testDevice("dev-1"), adapter.Command{
			Operation: "self_destruct",
		})
		if !errors.Is(err, adapter.ErrInvalidCommand) {
			t.Errorf("SendCommand() error = %v, want ErrInvalidCommand", err)
		}
	})

	t.Run("commands are logged", func(t *testing.T) {
		dev := testDevice("dev-logged")
		a.SendCommand(ctx, dev, adapter.Command{Operation: adapter.OpLockDoor})

		lines, err := a.GetLogs(ctx, dev, nil, nil)
		if err != nil {
			t.Fatalf("GetLogs() error = %v", err)
		}
		if len(lines) != 1 {
			t.Fatalf("len(lines) = %d, want 1", len(lines))
		}
	})
}

func TestAdapter_Configuration(t *testing.T) {
	a := New()
	ctx := context.Background()
	dev := testDevice("dev-cfg")

	// Partial updates merge rather than replace.
	if err := a.UpdateConfiguration(ctx, dev, adapter.DeviceConfiguration{"volume": 60}); err != nil {
		t.Fatalf("UpdateConfiguration() error = %v", err)
	}
	if err := a.UpdateConfiguration(ctx, dev, adapter.DeviceConfiguration{"door_open_seconds": 5}); err != nil {
		t.Fatalf("UpdateConfiguration() error = %v", err)
	}

	cfg, err := a.GetConfiguration(ctx, dev)
	if err != nil {
		t.Fatalf("GetConfiguration() error = %v", err)
	}
	if cfg["volume"] != 60 {
		t.Errorf("volume = %v, want 60", cfg["volume"])
	}
	if cfg["door_open_seconds"] != 5 {
		t.Errorf("door_open_seconds = %v, want 5", cfg["door_open_seconds"])
	}
}

func TestAdapter_Subscriptions(t *testing.T) {
	a := New()
	ctx := context.Background()
	dev := testDevice("dev-sub")

	t.Run("second subscription replaces the first", func(t *testing.T) {
		var first, second int
		a.SubscribeEvents(ctx, dev, func(adapter.Event) { first++ })
		a.SubscribeEvents(ctx, dev, func(adapter.Event) { second++ })

		delivered := a.Emit(adapter.Event{DeviceID: dev.DeviceID, EventType: "CARD_SCAN"})
		if !delivered {
			t.Fatal("Emit() = false, want true")
		}
		if first != 0 {
			t.Errorf("replaced callback fired %d times", first)
		}
		if second != 1 {
			t.Errorf("active callback fired %d times, want 1", second)
		}
	})

	t.Run("unsubscribe is idempotent", func(t *testing.T) {
		if err := a.UnsubscribeEvents(ctx, dev); err != nil {
			t.Fatalf("UnsubscribeEvents() error = %v", err)
		}
		if err := a.UnsubscribeEvents(ctx, dev); err != nil {
			t.Errorf("second UnsubscribeEvents() error = %v, want nil", err)
		}
		if a.Emit(adapter.Event{DeviceID: dev.DeviceID}) {
			t.Error("Emit() delivered after unsubscribe")
		}
	})
}

func TestAdapter_UserProvisioning(t *testing.T) {
	a := New()
	ctx := context.Background()
	dev := testDevice("dev-users")

	users := []adapter.DeviceUser{
		{UserID: "emp-1", Name: "Dana", CardID: "card-1"},
		{UserID: "emp-2", Name: "Lee", CardID: "card-2"},
	}
	if err := a.SyncUsers(ctx, dev, users); err != nil {
		t.Fatalf("SyncUsers() error = %v", err)
	}
	if got := a.UserCount(dev.DeviceID); got != 2 {
		t.Errorf("UserCount() = %d, want 2", got)
	}

	// Re-syncing the same user is an upsert, not a duplicate.
	if err := a.SyncUsers(ctx, dev, users[:1]); err != nil {
		t.Fatalf("SyncUsers() error = %v", err)
	}
	if got := a.UserCount(dev.DeviceID); got != 2 {
		t.Errorf("UserCount() after re-sync = %d, want 2", got)
	}

	if err := a.RemoveUser(ctx, dev, "emp-1"); err != nil {
		t.Fatalf("RemoveUser() error = %v", err)
	}
	if got := a.UserCount(dev.DeviceID); got != 1 {
		t.Errorf("UserCount() after removal = %d, want 1", got)
	}

	// Removing an unknown user is not an error.
	if err := a.RemoveUser(ctx, dev, "emp-unknown"); err != nil {
		t.Errorf("RemoveUser(unknown) error = %v, want nil", err)
	}
}

func TestAdapter_HealthAndLifecycle(t *testing.T) {
	a := New()
	ctx := context.Background()
	dev := testDevice("dev-life")

	health, err := a.GetHealth(ctx, dev)
	if err != nil {
		t.Fatalf("GetHealth() error = %v", err)
	}
	if health.Status != adapter.DeviceStatusOnline {
		t.Errorf("Status = %q, want online", health.Status)
	}
	if len(health.Issues) != 0 {
		t.Errorf("Issues = %v, want none", health.Issues)
	}

	ok, err := a.TestConnection(ctx, dev)
	if err != nil || !ok {
		t.Errorf("TestConnection() = (%v, %v), want (true, nil)", ok, err)
	}

	if err := a.Reboot(ctx, dev); err != nil {
		t.Fatalf("Reboot() error = %v", err)
	}

	fw, err := a.UpdateFirmware(ctx, dev, "https://firmware.example/v2.bin")
	if err != nil {
		t.Fatalf("UpdateFirmware() error = %v", err)
	}
	if !fw.Success {
		t.Error("UpdateFirmware() Success = false")
	}

	lines, _ := a.GetLogs(ctx, dev, nil, nil)
	if len(lines) != 2 { // reboot + firmware
		t.Errorf("len(lines) = %d, want 2", len(lines))
	}

	if err := a.ClearLogs(ctx, dev); err != nil {
		t.Fatalf("ClearLogs() error = %v", err)
	}
	lines, _ = a.GetLogs(ctx, dev, nil, nil)
	if len(lines) != 0 {
		t.Errorf("len(lines) after clear = %d, want 0", len(lines))
	}
}

func TestAdapter_MissingDeviceID(t *testing.T) {
	a := New()
	ctx := context.Background()
	none := adapter.DeviceContext{}

	if _, err := a.GetDeviceInfo(ctx, none); !errors.Is(err, adapter.ErrMissingDevice) {
		t.Errorf("GetDeviceInfo() error = %v, want ErrMissingDevice", err)
	}
	if _, err := a.GetConfiguration(ctx, none); !errors.Is(err, adapter.ErrMissingDevice) {
		t.Errorf("GetConfiguration() error = %v, want ErrMissingDevice", err)
	}
	if err := a.SubscribeEvents(ctx, none, nil); !errors.Is(err, adapter.ErrMissingDevice) {
		t.Errorf("SubscribeEvents() error = %v, want ErrMissingDevice", err)
	}
	if err := a.SyncUsers(ctx, none, nil); !errors.Is(err, adapter.ErrMissingDevice) {
		t.Errorf("SyncUsers() error = %v, want ErrMissingDevice", err)
	}
}
