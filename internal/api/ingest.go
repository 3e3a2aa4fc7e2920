package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/draymont/passage-core/internal/device"
	"github.com/draymont/passage-core/internal/event"
)

// Ingest authentication headers. Devices sign each submission with
// HMAC-SHA256 over "{timestamp}\n{body}" using their provisioned webhook
// secret, falling back to the deployment-wide shared secret.
const (
	headerIngestTimestamp = "X-Passage-Timestamp"
	headerIngestSignature = "X-Passage-Signature"
)

// ingestAuthMiddleware verifies the HMAC signature on device event
// submissions. The timestamp must be within the configured freshness
// window to limit replay of captured requests.
func (s *Server) ingestAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := chi.URLParam(r, "deviceID")
		if deviceID == "" {
			writeBadRequest(w, "device id is required")
			return
		}

		tsHeader := r.Header.Get(headerIngestTimestamp)
		sigHeader := r.Header.Get(headerIngestSignature)
		if tsHeader == "" || sigHeader == "" {
			writeUnauthorized(w, "signature headers are required")
			return
		}

		ts, err := strconv.ParseInt(tsHeader, 10, 64)
		if err != nil {
			writeUnauthorized(w, "invalid timestamp header")
			return
		}

		window := s.secCfg.Ingest.TimestampWindowDuration()
		skew := time.Since(time.Unix(ts, 0))
		if skew < -window || skew > window {
			writeUnauthorized(w, "request timestamp outside the allowed window")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeBadRequest(w, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		secret := s.deviceSecret(r, deviceID)
		if secret == "" {
			writeUnauthorized(w, "no ingest secret configured")
			return
		}

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(tsHeader))
		mac.Write([]byte("\n"))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(expected), []byte(sigHeader)) {
			s.logger.Warn("rejected ingest submission with bad signature", "device_id", deviceID)
			writeUnauthorized(w, "invalid signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// deviceSecret resolves the signing secret for a device: the per-device
// webhook secret when provisioned, otherwise the shared ingest secret.
// Unknown devices fall back to the shared secret so controllers can
// submit before their registry record exists.
func (s *Server) deviceSecret(r *http.Request, deviceID string) string {
	secret, err := s.registry.WebhookSecret(r.Context(), deviceID)
	if err == nil && secret != "" {
		return secret
	}
	if err != nil && !errors.Is(err, device.ErrNotFound) {
		s.logger.Warn("webhook secret lookup failed", "device_id", deviceID, "error", err)
	}
	return s.secCfg.Ingest.SharedSecret
}

// handleIngestEvent accepts a raw event from an access controller.
//
// Responses:
//   - 202 Accepted: the event was processed for the first time
//   - 200 OK: the event was recognised as a redelivery; the receipt
//     carries the original event id
//   - 400: the payload failed validation
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var raw event.RawEvent
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	receipt, err := s.pipeline.ProcessRawEvent(r.Context(), raw, deviceID)
	if err != nil {
		switch {
		case errors.Is(err, event.ErrMissingDeviceID), errors.Is(err, event.ErrMissingEventType):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			s.logger.Error("event ingestion failed", "device_id", deviceID, "error", err)
			writeInternalError(w, "failed to process event")
		}
		return
	}

	status := http.StatusAccepted
	if receipt.Status == event.StatusDuplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, receipt)
}
