package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/draymont/passage-core/internal/adapter"
	"github.com/draymont/passage-core/internal/adapter/stub"
	"github.com/draymont/passage-core/internal/device"
	"github.com/draymont/passage-core/internal/event"
	"github.com/draymont/passage-core/internal/infrastructure/config"
	"github.com/draymont/passage-core/internal/infrastructure/logging"
	"github.com/draymont/passage-core/internal/visit"
)

const (
	testJWTSecret    = "test-secret-key-at-least-32-characters-long"
	testIngestSecret = "shared-ingest-secret"
	testAdminPass    = "correct-horse-battery"
)

// testEnv bundles the server with the services tests seed data through.
type testEnv struct {
	srv      *Server
	router   http.Handler
	registry *device.Registry
	visits   *visit.Service
}

// testServer wires a Server against real repositories backed by
// in-memory SQLite.
func testServer(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	registry := device.NewRegistry(device.NewSQLiteRepository(db))
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	visits := visit.NewService(visit.NewSQLiteRepository(db), log)
	pipeline := event.NewPipeline(event.NewSQLiteRepository(db), registry, visits, log)

	factory, err := adapter.NewFactory(
		adapter.FactoryConfig{Preferred: adapter.TypeStub},
		map[adapter.Type]adapter.Constructor{
			adapter.TypeStub: func() adapter.DeviceAdapter { return stub.New() },
		},
		log,
	)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         testJWTSecret,
				AccessTokenTTL: 15,
			},
			Ingest: config.IngestConfig{
				SharedSecret:    testIngestSecret,
				TimestampWindow: 300,
			},
			Admin: config.AdminConfig{
				Username: "admin",
				Password: testAdminPass,
			},
		},
		Logger:   log,
		Registry: registry,
		Visits:   visits,
		Pipeline: pipeline,
		Factory:  factory,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub for tests
	srv.hub = NewHub(srv.wsCfg, log)
	go srv.hub.Run(context.Background())

	return &testEnv{
		srv:      srv,
		router:   srv.buildRouter(),
		registry: registry,
		visits:   visits,
	}
}

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			adapter_type   TEXT NOT NULL,
			host           TEXT NOT NULL DEFAULT '',
			port           INTEGER NOT NULL DEFAULT 0,
			username       TEXT NOT NULL DEFAULT '',
			password       TEXT NOT NULL DEFAULT '',
			webhook_secret TEXT NOT NULL DEFAULT '',
			location       TEXT NOT NULL DEFAULT '',
			online         INTEGER NOT NULL DEFAULT 0,
			last_seen      TEXT,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		);
		CREATE TABLE processed_events (
			event_id        TEXT PRIMARY KEY,
			idempotency_key TEXT NOT NULL,
			device_id       TEXT NOT NULL,
			event_type      TEXT NOT NULL,
			employee_id     TEXT NOT NULL DEFAULT '',
			card_id         TEXT NOT NULL DEFAULT '',
			visit_id        TEXT NOT NULL DEFAULT '',
			occurred_at     TEXT NOT NULL,
			received_at     TEXT NOT NULL,
			payload         TEXT NOT NULL DEFAULT '{}'
		);
		CREATE UNIQUE INDEX idx_processed_events_idempotency
			ON processed_events(idempotency_key);
		CREATE TABLE guest_visits (
			id                TEXT PRIMARY KEY,
			org_id            TEXT NOT NULL,
			branch_id         TEXT NOT NULL,
			guest_name        TEXT NOT NULL,
			guest_email       TEXT NOT NULL DEFAULT '',
			host_employee_id  TEXT NOT NULL,
			purpose           TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL,
			credential_type   TEXT NOT NULL DEFAULT '',
			credential_hash   TEXT,
			rejection_reason  TEXT NOT NULL DEFAULT '',
			scheduled_entry   TEXT NOT NULL,
			scheduled_exit    TEXT NOT NULL,
			actual_entry      TEXT,
			actual_exit       TEXT,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL
		);
		CREATE UNIQUE INDEX idx_guest_visits_credential
			ON guest_visits(credential_hash) WHERE credential_hash IS NOT NULL;
	`

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// adminToken signs a bearer token with the given scopes.
func adminToken(t *testing.T, scopes ...string) string {
	t.Helper()

	scopeClaims := make([]any, len(scopes))
	for i, s := range scopes {
		scopeClaims[i] = s
	}
	claims := jwt.MapClaims{
		"sub":    "admin",
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(10 * time.Minute).Unix(),
		"scopes": scopeClaims,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// authedRequest builds a request carrying a bearer token with all scopes.
func authedRequest(t *testing.T, method, path string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "guest:manage", "device:manage", "device:read"))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// signedIngestRequest builds a device submission with a valid HMAC signature.
func signedIngestRequest(t *testing.T, deviceID, secret string, body []byte) *http.Request {
	t.Helper()

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("\n"))
	mac.Write(body)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/raw/"+deviceID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerIngestTimestamp, ts)
	req.Header.Set(headerIngestSignature, hex.EncodeToString(mac.Sum(nil)))
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decodeBody(t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", w.Header().Get("Content-Type"))
	}
}

func TestRequestID_Generated(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-supplied" {
		t.Errorf("X-Request-ID = %q, want client-supplied", got)
	}
}

func TestLogin(t *testing.T) {
	env := testServer(t)

	t.Run("valid credentials return a token", func(t *testing.T) {
		body := fmt.Sprintf(`{"username":"admin","password":%q}`, testAdminPass)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader([]byte(body)))
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("login status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}
		resp := decodeBody(t, w)
		if resp["access_token"] == "" || resp["access_token"] == nil {
			t.Error("access_token is empty")
		}
		if resp["token_type"] != "Bearer" {
			t.Errorf("token_type = %v, want Bearer", resp["token_type"])
		}
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			bytes.NewReader([]byte(`{"username":"admin","password":"wrong"}`)))
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("login status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

func TestAuthMiddleware(t *testing.T) {
	env := testServer(t)

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/", nil)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("malformed token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("missing scope is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/visits/", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken(t, "device:read"))
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("valid token and scope", func(t *testing.T) {
		req := authedRequest(t, http.MethodGet, "/api/v1/devices/", nil)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}
	})
}

func TestIngest(t *testing.T) {
	payload := []byte(`{"eventType":"CARD_SCAN","cardId":"card-42","timestamp":"2024-01-01T09:00:00Z"}`)

	t.Run("accepted then duplicate", func(t *testing.T) {
		env := testServer(t)

		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, signedIngestRequest(t, "dev-1", testIngestSecret, payload))
		if w.Code != http.StatusAccepted {
			t.Fatalf("first submission status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
		}
		first := decodeBody(t, w)
		if first["status"] != "accepted" {
			t.Errorf("receipt status = %v, want accepted", first["status"])
		}

		w = httptest.NewRecorder()
		env.router.ServeHTTP(w, signedIngestRequest(t, "dev-1", testIngestSecret, payload))
		if w.Code != http.StatusOK {
			t.Fatalf("replay status = %d, want %d", w.Code, http.StatusOK)
		}
		second := decodeBody(t, w)
		if second["status"] != "duplicate" {
			t.Errorf("replay receipt status = %v, want duplicate", second["status"])
		}
		if second["eventId"] != first["eventId"] {
			t.Errorf("replay eventId = %v, want original %v", second["eventId"], first["eventId"])
		}
	})

	t.Run("bad signature rejected", func(t *testing.T) {
		env := testServer(t)

		req := signedIngestRequest(t, "dev-1", "wrong-secret", payload)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("missing signature headers rejected", func(t *testing.T) {
		env := testServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/events/raw/dev-1", bytes.NewReader(payload))
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("stale timestamp rejected", func(t *testing.T) {
		env := testServer(t)

		ts := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
		mac := hmac.New(sha256.New, []byte(testIngestSecret))
		mac.Write([]byte(ts))
		mac.Write([]byte("\n"))
		mac.Write(payload)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/events/raw/dev-1", bytes.NewReader(payload))
		req.Header.Set(headerIngestTimestamp, ts)
		req.Header.Set(headerIngestSignature, hex.EncodeToString(mac.Sum(nil)))
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("missing event type is a validation error", func(t *testing.T) {
		env := testServer(t)

		body := []byte(`{"cardId":"card-42"}`)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, signedIngestRequest(t, "dev-1", testIngestSecret, body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("per-device secret overrides shared secret", func(t *testing.T) {
		env := testServer(t)

		dev := &device.Device{
			Name:          "Lobby Turnstile",
			AdapterType:   adapter.TypeStub,
			WebhookSecret: "device-specific-secret",
		}
		if err := env.registry.CreateDevice(context.Background(), dev); err != nil {
			t.Fatalf("CreateDevice: %v", err)
		}

		// Shared secret no longer valid for this device
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, signedIngestRequest(t, dev.ID, testIngestSecret, payload))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("shared-secret submission status = %d, want %d", w.Code, http.StatusUnauthorized)
		}

		w = httptest.NewRecorder()
		env.router.ServeHTTP(w, signedIngestRequest(t, dev.ID, "device-specific-secret", payload))
		if w.Code != http.StatusAccepted {
			t.Errorf("device-secret submission status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
		}
	})
}

func TestVisitLifecycleHTTP(t *testing.T) {
	env := testServer(t)

	entry := time.Now().Add(-time.Hour).UTC()
	exit := time.Now().Add(4 * time.Hour).UTC()

	// Create
	createBody, _ := json.Marshal(map[string]any{
		"org_id":           "org-1",
		"branch_id":        "branch-hq",
		"guest_name":       "Ada Quill",
		"guest_email":      "ada@example.com",
		"host_employee_id": "emp-7",
		"purpose":          "design review",
		"scheduled_entry":  entry,
		"scheduled_exit":   exit,
	})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/v1/visits/", createBody))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	created := decodeBody(t, w)
	visitID, _ := created["id"].(string)
	if visitID == "" {
		t.Fatal("created visit has no id")
	}
	if created["status"] != "pending" {
		t.Errorf("created status = %v, want pending", created["status"])
	}

	// Approve: raw credential returned exactly once
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, authedRequest(t, http.MethodPost,
		"/api/v1/visits/"+visitID+"/approve", []byte(`{"credential_type":"qr_code"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("approve status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	approved := decodeBody(t, w)
	credential, _ := approved["credential"].(string)
	if credential == "" {
		t.Fatal("approval did not return a credential")
	}

	// Second approve conflicts
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, authedRequest(t, http.MethodPost,
		"/api/v1/visits/"+visitID+"/approve", []byte(`{"credential_type":"qr_code"}`)))
	if w.Code != http.StatusConflict {
		t.Errorf("second approve status = %d, want %d", w.Code, http.StatusConflict)
	}

	// Credential scan through the ingest path activates the visit
	scanBody, _ := json.Marshal(map[string]any{
		"eventType":       "GUEST_CREDENTIAL_SCAN",
		"guestCredential": credential,
	})
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, signedIngestRequest(t, "dev-entrance", testIngestSecret, scanBody))
	if w.Code != http.StatusAccepted {
		t.Fatalf("scan status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/v1/visits/"+visitID, nil))
	got := decodeBody(t, w)
	if got["status"] != "active" {
		t.Errorf("post-scan status = %v, want active", got["status"])
	}
	if got["actual_entry"] == nil {
		t.Error("actual_entry not recorded")
	}

	// Complete
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/v1/visits/"+visitID+"/complete", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("complete status = %d, want %d: %s", w.Code, http.StatusNoContent, w.Body.String())
	}

	// Terminal visits refuse further transitions
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/v1/visits/"+visitID+"/activate", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("activate after complete status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestVisitValidationHTTP(t *testing.T) {
	env := testServer(t)

	t.Run("create without guest name", func(t *testing.T) {
		body := []byte(`{"org_id":"org-1","branch_id":"b-1","host_employee_id":"emp-1","scheduled_entry":"2026-01-01T09:00:00Z","scheduled_exit":"2026-01-01T17:00:00Z"}`)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/v1/visits/", body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("create without organization", func(t *testing.T) {
		body := []byte(`{"guest_name":"G","host_employee_id":"emp-1","scheduled_entry":"2026-01-01T09:00:00Z","scheduled_exit":"2026-01-01T17:00:00Z"}`)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/v1/visits/", body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("create with inverted window", func(t *testing.T) {
		body := []byte(`{"org_id":"org-1","branch_id":"b-1","guest_name":"G","host_employee_id":"emp-1","scheduled_entry":"2026-01-01T17:00:00Z","scheduled_exit":"2026-01-01T09:00:00Z"}`)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/v1/visits/", body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("reject without reason", func(t *testing.T) {
		v := &visit.Visit{
			OrgID:          "org-1",
			BranchID:       "branch-hq",
			GuestName:      "Rejected Guest",
			HostEmployeeID: "emp-1",
			ScheduledEntry: time.Now().Add(time.Hour),
			ScheduledExit:  time.Now().Add(2 * time.Hour),
		}
		if err := env.visits.Create(context.Background(), v); err != nil {
			t.Fatalf("Create: %v", err)
		}

		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/v1/visits/"+v.ID+"/reject", []byte(`{}`)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("unknown visit", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/v1/visits/nope", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("bad status filter", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/v1/visits/?status=bogus", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestDevicesHTTP(t *testing.T) {
	env := testServer(t)

	t.Run("create and fetch", func(t *testing.T) {
		body := []byte(`{"name":"Lobby Entrance","adapter_type":"hikvision","host":"10.0.0.5","port":80,"location":"lobby"}`)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/v1/devices/", body))
		if w.Code != http.StatusCreated {
			t.Fatalf("create status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
		}
		created := decodeBody(t, w)
		id, _ := created["id"].(string)
		if id == "" {
			t.Fatal("created device has no id")
		}

		w = httptest.NewRecorder()
		env.router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/v1/devices/"+id, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("get status = %d, want %d", w.Code, http.StatusOK)
		}
		got := decodeBody(t, w)
		if got["name"] != "Lobby Entrance" {
			t.Errorf("name = %v, want Lobby Entrance", got["name"])
		}
		if _, leaked := got["password"]; leaked {
			t.Error("password leaked into API response")
		}
	})

	t.Run("invalid adapter type", func(t *testing.T) {
		body := []byte(`{"name":"Bad","adapter_type":"acme-3000"}`)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/v1/devices/", body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("unknown device", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/v1/devices/nope", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("bad adapter_type filter", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/v1/devices/?adapter_type=acme", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestAdapterHealthHTTP(t *testing.T) {
	env := testServer(t)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/v1/adapters/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["count"] != float64(1) {
		t.Errorf("count = %v, want 1 (stub only)", resp["count"])
	}

	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/v1/adapters/recommended", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("recommended status = %d, want %d", w.Code, http.StatusOK)
	}
	rec := decodeBody(t, w)
	if rec["recommended"] != "stub" {
		t.Errorf("recommended = %v, want stub", rec["recommended"])
	}
}
