// Package hikvision implements the DeviceAdapter contract against the
// ISAPI-style HTTP interface exposed by Hikvision access controllers.
//
// Each call builds the device base URL from the DeviceContext, so one
// adapter instance serves any number of controllers. Push events are
// delivered by the devices themselves via HTTP notification (webhook);
// SubscribeEvents configures the notification host on the controller
// and registers the local callback slot.
package hikvision

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/draymont/passage-core/internal/adapter"
	"github.com/draymont/passage-core/internal/infrastructure/logging"
)

// Client defaults.
const (
	defaultPort    = 80
	defaultTimeout = 10 * time.Second
	retryCount     = 2
	retryWait      = 500 * time.Millisecond
)

// Adapter talks ISAPI JSON to Hikvision-family access controllers.
//
// Thread safe: the resty client is shared and safe for concurrent use,
// and the subscription table is mutex-guarded.
type Adapter struct {
	http *resty.Client
	log  *logging.Logger

	mu   sync.RWMutex
	subs map[string]adapter.EventCallback
	seed []adapter.DeviceContext
}

// deviceInfoResponse mirrors ISAPI /System/deviceInfo.
type deviceInfoResponse struct {
	DeviceName      string `json:"deviceName"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmwareVersion"`
	MACAddress      string `json:"macAddress"`
}

// healthResponse mirrors ISAPI /System/status.
type healthResponse struct {
	UptimeSeconds int64   `json:"deviceUpTime"`
	CPUPercent    float64 `json:"cpuUsage"`
	MemoryPercent float64 `json:"memoryUsage"`
	TempCelsius   float64 `json:"temperature"`
}

// commandResponse is the generic ISAPI operation acknowledgement.
type commandResponse struct {
	StatusCode int    `json:"statusCode"`
	StatusStr  string `json:"statusString"`
	SubStatus  string `json:"subStatusCode"`
}

// logResponse mirrors ISAPI /System/logSearch.
type logResponse struct {
	Entries []struct {
		Time    string `json:"time"`
		Message string `json:"message"`
	} `json:"logEntries"`
}

// New creates a Hikvision adapter with a shared HTTP client.
func New(log *logging.Logger) *Adapter {
	client := resty.New().
		SetTimeout(defaultTimeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(retryWait).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if log == nil {
		log = logging.Default()
	}

	return &Adapter{
		http: client,
		log:  log.With("component", "hikvision"),
		subs: make(map[string]adapter.EventCallback),
	}
}

// Type returns adapter.TypeHikvision.
func (a *Adapter) Type() adapter.Type {
	return adapter.TypeHikvision
}

// baseURL builds the device endpoint root from connection configuration.
func baseURL(dev adapter.DeviceContext) string {
	port := dev.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("http://%s:%d/ISAPI", dev.Host, port)
}

// request prepares an authenticated request bound to the context.
func (a *Adapter) request(ctx context.Context, dev adapter.DeviceContext) *resty.Request {
	r := a.http.R().SetContext(ctx)
	if dev.Username != "" {
		r.SetBasicAuth(dev.Username, dev.Password)
	}
	return r
}

// SetKnownDevices seeds the controllers Discover walks. ISAPI has no
// subnet-wide discovery without a SADP multicast listener, so the
// platform registers controllers explicitly and discovery verifies
// each of them.
func (a *Adapter) SetKnownDevices(devs []adapter.DeviceContext) {
	a.mu.Lock()
	a.seed = append([]adapter.DeviceContext(nil), devs...)
	a.mu.Unlock()
}

// Discover walks the seeded controllers and returns a snapshot for each.
// Controllers that fail to answer are included with status offline; the
// call errors only when no seeded controller answers at all, which is
// what lets factory health probes distinguish "vendor estate down" from
// "one flaky box".
func (a *Adapter) Discover(ctx context.Context) ([]adapter.DeviceInfo, error) {
	a.mu.RLock()
	seed := a.seed
	a.mu.RUnlock()

	if len(seed) == 0 {
		return []adapter.DeviceInfo{}, nil
	}

	infos := make([]adapter.DeviceInfo, 0, len(seed))
	reachable := 0
	for _, dev := range seed {
		info, err := a.GetDeviceInfo(ctx, dev)
		if err != nil {
			infos = append(infos, adapter.DeviceInfo{
				ID:     dev.DeviceID,
				Host:   dev.Host,
				Vendor: "hikvision",
				Status: adapter.DeviceStatusOffline,
			})
			continue
		}
		reachable++
		infos = append(infos, info)
	}

	if reachable == 0 {
		return nil, fmt.Errorf("%w: no seeded controller answered", adapter.ErrDeviceUnreachable)
	}
	return infos, nil
}

// GetDeviceInfo fetches /System/deviceInfo from the controller.
func (a *Adapter) GetDeviceInfo(ctx context.Context, dev adapter.DeviceContext) (adapter.DeviceInfo, error) {
	if dev.DeviceID == "" {
		return adapter.DeviceInfo{}, adapter.ErrMissingDevice
	}

	var body deviceInfoResponse
	resp, err := a.request(ctx, dev).
		SetResult(&body).
		Get(baseURL(dev) + "/System/deviceInfo")
	if err != nil {
		return adapter.DeviceInfo{}, fmt.Errorf("%w: %v", adapter.ErrDeviceUnreachable, err)
	}
	if resp.IsError() {
		return adapter.DeviceInfo{}, fmt.Errorf("device info request failed: HTTP %d", resp.StatusCode())
	}

	return adapter.DeviceInfo{
		ID:              dev.DeviceID,
		Name:            body.DeviceName,
		Vendor:          "hikvision",
		Model:           body.Model,
		FirmwareVersion: body.FirmwareVersion,
		Host:            dev.Host,
		MACAddress:      body.MACAddress,
		Status:          adapter.DeviceStatusOnline,
		LastSeen:        time.Now().UTC(),
		Capabilities: []adapter.Capability{
			{Type: adapter.CapabilityCardReader, Enabled: true},
			{Type: adapter.CapabilityFace, Enabled: true},
			{Type: adapter.CapabilityDoorRelay, Enabled: true},
			{Type: adapter.CapabilityTamperAlarm, Enabled: true},
		},
	}, nil
}

// GetConfiguration reads the controller's access configuration block.
func (a *Adapter) GetConfiguration(ctx context.Context, dev adapter.DeviceContext) (adapter.DeviceConfiguration, error) {
	if dev.DeviceID == "" {
		return nil, adapter.ErrMissingDevice
	}

	var cfg adapter.DeviceConfiguration
	resp, err := a.request(ctx, dev).
		SetResult(&cfg).
		Get(baseURL(dev) + "/AccessControl/AcsCfg")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", adapter.ErrDeviceUnreachable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("configuration read failed: HTTP %d", resp.StatusCode())
	}
	return cfg, nil
}

// UpdateConfiguration PUTs a partial settings update to the controller.
// The controller merges server-side; absent keys are untouched.
func (a *Adapter) UpdateConfiguration(ctx context.Context, dev adapter.DeviceContext, partial adapter.DeviceConfiguration) error {
	if dev.DeviceID == "" {
		return adapter.ErrMissingDevice
	}

	resp, err := a.request(ctx, dev).
		SetBody(partial).
		Put(baseURL(dev) + "/AccessControl/AcsCfg")
	if err != nil {
		return fmt.Errorf("%w: %v", adapter.ErrDeviceUnreachable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("configuration update failed: HTTP %d", resp.StatusCode())
	}
	return nil
}

// commandEndpoints maps supported operations to their ISAPI paths.
var commandEndpoints = map[adapter.CommandOperation]string{
	adapter.OpUnlockDoor:       "/AccessControl/RemoteControl/door/1?cmd=open",
	adapter.OpLockDoor:         "/AccessControl/RemoteControl/door/1?cmd=close",
	adapter.OpReboot:           "/System/reboot",
	adapter.OpGetStatus:        "/System/status",
	adapter.OpClearAlarms:      "/Event/notification/alertStream?cmd=clear",
	adapter.OpConfigureWebhook: "/Event/notification/httpHosts",
}

// SendCommand executes a command against the controller. Operations the
// adapter has no endpoint for (sync_users, update_firmware) are routed
// to their dedicated methods by callers; invoking them here reports a
// failed result rather than an error, since the invocation itself was
// well-formed.
func (a *Adapter) SendCommand(ctx context.Context, dev adapter.DeviceContext, cmd adapter.Command) (adapter.CommandResult, error) {
	if dev.DeviceID == "" {
		return adapter.CommandResult{}, fmt.Errorf("%w: missing device identifier", adapter.ErrInvalidCommand)
	}
	if !cmd.Operation.IsValid() {
		return adapter.CommandResult{}, fmt.Errorf("%w: unknown operation %q", adapter.ErrInvalidCommand, cmd.Operation)
	}

	endpoint, ok := commandEndpoints[cmd.Operation]
	if !ok {
		return adapter.CommandResult{
			Success:    false,
			Message:    fmt.Sprintf("operation %s requires its dedicated call", cmd.Operation),
			ExecutedAt: time.Now().UTC(),
		}, nil
	}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	var ack commandResponse
	req := a.request(ctx, dev).SetResult(&ack)
	if len(cmd.Parameters) > 0 {
		req.SetBody(cmd.Parameters)
	}

	resp, err := req.Put(baseURL(dev) + endpoint)
	if err != nil {
		return adapter.CommandResult{}, fmt.Errorf("%w: %v", adapter.ErrDeviceUnreachable, err)
	}

	result := adapter.CommandResult{
		Success:    !resp.IsError() && ack.StatusCode <= 1,
		Message:    ack.StatusStr,
		ExecutedAt: time.Now().UTC(),
	}
	if result.Message == "" {
		result.Message = fmt.Sprintf("HTTP %d", resp.StatusCode())
	}

	a.log.Info("command dispatched",
		"device_id", dev.DeviceID,
		"operation", string(cmd.Operation),
		"success", result.Success,
	)
	return result, nil
}

// GetHealth fetches /System/status and classifies readings into issues.
func (a *Adapter) GetHealth(ctx context.Context, dev adapter.DeviceContext) (adapter.DeviceHealth, error) {
	if dev.DeviceID == "" {
		return adapter.DeviceHealth{}, adapter.ErrMissingDevice
	}

	var body healthResponse
	resp, err := a.request(ctx, dev).
		SetResult(&body).
		Get(baseURL(dev) + "/System/status")
	if err != nil {
		return adapter.DeviceHealth{}, fmt.Errorf("%w: %v", adapter.ErrDeviceUnreachable, err)
	}
	if resp.IsError() {
		return adapter.DeviceHealth{}, fmt.Errorf("health request failed: HTTP %d", resp.StatusCode())
	}

	h := adapter.DeviceHealth{
		Status:        adapter.DeviceStatusOnline,
		UptimeSeconds: body.UptimeSeconds,
		CPUPercent:    body.CPUPercent,
		MemoryPercent: body.MemoryPercent,
		TempCelsius:   body.TempCelsius,
		CheckedAt:     time.Now().UTC(),
	}
	h.ClassifyIssues()
	return h, nil
}

// SubscribeEvents configures the controller's HTTP notification host to
// point at this platform and registers the local callback slot. A second
// subscription for the same device replaces the previous callback.
//
// The notification URL is taken from dev.Extra["webhook_url"]; without
// it only the local slot is registered, which is enough for bridged
// delivery paths (MQTT, manual replay).
func (a *Adapter) SubscribeEvents(ctx context.Context, dev adapter.DeviceContext, cb adapter.EventCallback) error {
	if dev.DeviceID == "" {
		return adapter.ErrMissingDevice
	}

	if url, ok := dev.Extra["webhook_url"].(string); ok && url != "" {
		resp, err := a.request(ctx, dev).
			SetBody(map[string]any{
				"id":  1,
				"url": url,
			}).
			Put(baseURL(dev) + "/Event/notification/httpHosts")
		if err != nil {
			return fmt.Errorf("%w: %v", adapter.ErrDeviceUnreachable, err)
		}
		if resp.IsError() {
			return fmt.Errorf("webhook configuration failed: HTTP %d", resp.StatusCode())
		}
	}

	a.mu.Lock()
	a.subs[dev.DeviceID] = cb
	a.mu.Unlock()
	return nil
}

// UnsubscribeEvents removes the callback slot for the device. Idempotent.
// The controller-side notification host is left in place; tearing it
// down on every unsubscribe causes needless flash wear on controllers
// that persist the setting.
func (a *Adapter) UnsubscribeEvents(_ context.Context, dev adapter.DeviceContext) error {
	if dev.DeviceID == "" {
		return adapter.ErrMissingDevice
	}

	a.mu.Lock()
	delete(a.subs, dev.DeviceID)
	a.mu.Unlock()
	return nil
}

// Deliver routes an inbound notification to the device's subscribed
// callback. The HTTP ingress that receives controller notifications
// calls this after authentication. Returns true if a callback was
// registered for the device.
func (a *Adapter) Deliver(ev adapter.Event) bool {
	a.mu.RLock()
	cb := a.subs[ev.DeviceID]
	a.mu.RUnlock()

	if cb == nil {
		return false
	}
	cb(ev)
	return true
}

// SyncUsers provisions credential holders onto the controller one at a
// time via /AccessControl/UserInfo. Controllers reject batch writes
// above a few dozen entries, so per-user requests keep behaviour
// uniform across firmware generations.
func (a *Adapter) SyncUsers(ctx context.Context, dev adapter.DeviceContext, users []adapter.DeviceUser) error {
	if dev.DeviceID == "" {
		return adapter.ErrMissingDevice
	}

	for _, u := range users {
		resp, err := a.request(ctx, dev).
			SetBody(map[string]any{
				"UserInfo": map[string]any{
					"employeeNo": u.UserID,
					"name":       u.Name,
					"cardNo":     u.CardID,
					"beginTime":  u.ValidFrom,
					"endTime":    u.ValidUntil,
				},
			}).
			Post(baseURL(dev) + "/AccessControl/UserInfo/Record")
		if err != nil {
			return fmt.Errorf("%w: syncing user %s: %v", adapter.ErrDeviceUnreachable, u.UserID, err)
		}
		if resp.IsError() {
			return fmt.Errorf("user sync failed for %s: HTTP %d", u.UserID, resp.StatusCode())
		}
	}

	a.log.Info("users synced", "device_id", dev.DeviceID, "count", len(users))
	return nil
}

// RemoveUser deprovisions a credential holder from the controller.
func (a *Adapter) RemoveUser(ctx context.Context, dev adapter.DeviceContext, userID string) error {
	if dev.DeviceID == "" {
		return adapter.ErrMissingDevice
	}

	resp, err := a.request(ctx, dev).
		SetBody(map[string]any{
			"UserInfoDelCond": map[string]any{
				"EmployeeNoList": []map[string]string{{"employeeNo": userID}},
			},
		}).
		Put(baseURL(dev) + "/AccessControl/UserInfo/Delete")
	if err != nil {
		return fmt.Errorf("%w: %v", adapter.ErrDeviceUnreachable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("user removal failed for %s: HTTP %d", userID, resp.StatusCode())
	}
	return nil
}

// TestConnection probes /System/deviceInfo and reports reachability.
// Transport failure yields (false, nil): an unreachable device is an
// answer, not an error.
func (a *Adapter) TestConnection(ctx context.Context, dev adapter.DeviceContext) (bool, error) {
	if dev.DeviceID == "" {
		return false, adapter.ErrMissingDevice
	}

	resp, err := a.request(ctx, dev).Get(baseURL(dev) + "/System/deviceInfo")
	if err != nil {
		return false, nil
	}
	return !resp.IsError(), nil
}

// Reboot restarts the controller.
func (a *Adapter) Reboot(ctx context.Context, dev adapter.DeviceContext) error {
	if dev.DeviceID == "" {
		return adapter.ErrMissingDevice
	}

	resp, err := a.request(ctx, dev).Put(baseURL(dev) + "/System/reboot")
	if err != nil {
		return fmt.Errorf("%w: %v", adapter.ErrDeviceUnreachable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("reboot failed: HTTP %d", resp.StatusCode())
	}
	return nil
}

// UpdateFirmware instructs the controller to fetch firmware from url.
// The controller applies it asynchronously and drops the connection
// mid-flash, so acceptance of the request is the success signal.
func (a *Adapter) UpdateFirmware(ctx context.Context, dev adapter.DeviceContext, url string) (adapter.FirmwareResult, error) {
	if dev.DeviceID == "" {
		return adapter.FirmwareResult{}, adapter.ErrMissingDevice
	}

	resp, err := a.request(ctx, dev).
		SetBody(map[string]string{"url": url}).
		Put(baseURL(dev) + "/System/updateFirmware")
	if err != nil {
		return adapter.FirmwareResult{}, fmt.Errorf("%w: %v", adapter.ErrDeviceUnreachable, err)
	}

	if resp.IsError() {
		return adapter.FirmwareResult{
			Success: false,
			Message: fmt.Sprintf("firmware update rejected: HTTP %d", resp.StatusCode()),
		}, nil
	}
	return adapter.FirmwareResult{
		Success: true,
		Message: "firmware update accepted",
	}, nil
}

// GetLogs searches the controller's log store, optionally time-bounded.
func (a *Adapter) GetLogs(ctx context.Context, dev adapter.DeviceContext, start, end *time.Time) ([]string, error) {
	if dev.DeviceID == "" {
		return nil, adapter.ErrMissingDevice
	}

	cond := map[string]any{}
	if start != nil {
		cond["startTime"] = start.UTC().Format(time.RFC3339)
	}
	if end != nil {
		cond["endTime"] = end.UTC().Format(time.RFC3339)
	}

	var body logResponse
	resp, err := a.request(ctx, dev).
		SetBody(map[string]any{"SearchCond": cond}).
		SetResult(&body).
		Post(baseURL(dev) + "/System/logSearch")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", adapter.ErrDeviceUnreachable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("log search failed: HTTP %d", resp.StatusCode())
	}

	lines := make([]string, 0, len(body.Entries))
	for _, e := range body.Entries {
		lines = append(lines, strings.TrimSpace(e.Time+" "+e.Message))
	}
	return lines, nil
}

// ClearLogs wipes the controller's local log store.
func (a *Adapter) ClearLogs(ctx context.Context, dev adapter.DeviceContext) error {
	if dev.DeviceID == "" {
		return adapter.ErrMissingDevice
	}

	resp, err := a.request(ctx, dev).Delete(baseURL(dev) + "/System/logSearch")
	if err != nil {
		return fmt.Errorf("%w: %v", adapter.ErrDeviceUnreachable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("log clear failed: HTTP %d", resp.StatusCode())
	}
	return nil
}
