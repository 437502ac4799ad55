// Package api serves the overlay's HTTP surface: state inspection, health,
// and the operator-facing alert controls. Everything that mutates state goes
// through the store's inbox; handlers never touch the tree directly.
package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"streamglass/internal/action"
	"streamglass/internal/models"
	"streamglass/internal/store"
)

// Handler bundles the dependencies of the HTTP endpoints.
type Handler struct {
	Store *store.Store
	// ControlToken guards the mutating endpoints. When empty they are
	// disabled entirely; the read-only surface stays open to the local
	// browser source.
	ControlToken string
	StartedAt    time.Time
}

// NewHandler builds a handler around the store.
func NewHandler(s *store.Store, controlToken string) *Handler {
	return &Handler{Store: s, ControlToken: controlToken, StartedAt: time.Now().UTC()}
}

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

type healthResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	Components    []componentStatus `json:"components"`
}

// Health reports overall process health derived from the state tree. The bot
// link being down degrades the report but never fails it: the overlay is
// designed to keep rendering without the bot.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	tree := h.Store.State()
	overall := "ok"
	components := make([]componentStatus, 0, 3)

	record := func(component, status, detail string) {
		if status != "ok" && overall == "ok" {
			overall = "degraded"
		}
		components = append(components, componentStatus{Component: component, Status: status, Detail: detail})
	}

	record("store", "ok", fmt.Sprintf("actions=%d", tree.Meta.ActionCount))
	if tree.Connection.Status == "connected" {
		record("bot", "ok", "")
	} else {
		record("bot", "degraded", tree.Connection.Status)
	}
	if len(tree.Alerts.Queue) >= tree.Alerts.MaxQueueSize {
		record("alert_queue", "degraded", "queue at capacity")
	} else {
		record("alert_queue", "ok", "")
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:        overall,
		UptimeSeconds: int64(time.Since(h.StartedAt).Seconds()),
		Components:    components,
	})
}

// State returns the full committed tree as JSON. Overlay pages use it for
// debugging; the live path is the websocket.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	writeJSON(w, http.StatusOK, h.Store.State())
}

type testAlertRequest struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	Message  string `json:"message"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type testAlertResponse struct {
	ID     string `json:"id"`
	Queued bool   `json:"queued"`
}

// TestAlert injects a synthetic alert through the normal admission path so
// operators can check layout and timing without waiting for a real event.
func (h *Handler) TestAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if !h.authorize(r) {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid control token"))
		return
	}
	var req testAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	alertType := models.AlertType(strings.ToLower(strings.TrimSpace(req.Type)))
	if alertType == "" {
		alertType = models.AlertFollow
	}
	if !models.KnownAlertType(alertType) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown alert type %q", req.Type))
		return
	}
	user := strings.TrimSpace(req.User)
	if user == "" {
		user = "test_user"
	}
	alert := models.Alert{
		ID:       "test-" + uuid.NewString(),
		Type:     alertType,
		Platform: models.PlatformTest,
		User:     user,
		Message:  strings.TrimSpace(req.Message),
		Currency: strings.ToUpper(strings.TrimSpace(req.Currency)),
	}
	if req.Amount != "" {
		amount, err := models.ParseMoney(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid amount: %w", err))
			return
		}
		alert.Amount = amount
	}
	if err := h.Store.Send(action.NewAlertEnqueued(alert)); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusAccepted, testAlertResponse{ID: alert.ID, Queued: true})
}

// ClearAlerts is the panic button: it force-dismisses everything queued and
// on screen in one action.
func (h *Handler) ClearAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if !h.authorize(r) {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid control token"))
		return
	}
	if err := h.Store.Send(action.NewAlertCleared()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"cleared": true})
}

func (h *Handler) authorize(r *http.Request) bool {
	if h.ControlToken == "" {
		return false
	}
	token := ExtractToken(r)
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.ControlToken)) == 1
}

// ExtractToken pulls the bearer token from the Authorization header, falling
// back to the token query parameter for browser-source URLs that cannot set
// headers.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
