// Package webhook exposes the inbound push listener. External services
// deliver change notifications here; each notification is re-fetched
// through its adapter and applied to the cache. Delivery is
// at-least-once, so processing is replay-safe.
package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driving"
	"github.com/deskhub-io/deskhub/internal/logger"
)

// secretHeader carries the shared secret that authenticates push senders.
const secretHeader = "X-Deskhub-Secret"

// maxBodyBytes bounds the notification payload size.
const maxBodyBytes = 1 << 20

// Server handles push notifications over HTTP.
type Server struct {
	reconciler driving.Reconciler
	secret     string
}

// NewServer creates the push listener. An empty sharedSecret disables
// authentication (loopback-only deployments).
func NewServer(reconciler driving.Reconciler, sharedSecret string) *Server {
	return &Server{reconciler: reconciler, secret: sharedSecret}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/healthz":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case "/v1/push":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handlePush(w, r)
	default:
		writeError(w, http.StatusNotFound, "route not found")
	}
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid shared secret")
		return
	}

	var n domain.PushNotification
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, "malformed notification body")
		return
	}
	if msg, ok := validate(n); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := s.reconciler.ApplyPush(r.Context(), n); err != nil {
		// The sender retries on 5xx; processing is idempotent.
		logger.Warn("push %s for %s failed: %v", n.Action, n.RecordID, err)
		writeError(w, http.StatusInternalServerError, "notification processing failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.secret == "" {
		return true
	}
	got := r.Header.Get(secretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) == 1
}

func validate(n domain.PushNotification) (string, bool) {
	if n.RecordID == "" {
		return "record_id is required", false
	}
	if !n.Kind.IsValid() {
		return "unknown record kind", false
	}
	switch n.Action {
	case domain.PushCreated, domain.PushUpdated, domain.PushDeleted:
		return "", true
	}
	return "unknown action", false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
