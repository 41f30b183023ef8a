package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"seolens/internal/auth"
	"seolens/internal/observability/logging"
	"seolens/internal/observability/metrics"
	"seolens/internal/relay"
	"seolens/internal/storage"
)

// Response body the frontend matches on verbatim.
var errAccessDenied = errors.New("access denied")

const defaultMaxUploadBytes = 512 << 20

// Handler carries the dependencies shared by all HTTP endpoints.
type Handler struct {
	Store   storage.Repository
	Tokens  *auth.Service
	Relay   *relay.Client
	Metrics *metrics.Recorder
	Logger  *slog.Logger

	// MaxUploadBytes caps the inbound multipart body on /api/upload.
	MaxUploadBytes int64
}

func NewHandler(store storage.Repository, tokens *auth.Service, relayClient *relay.Client, logger *slog.Logger) *Handler {
	return &Handler{
		Store:          store,
		Tokens:         tokens,
		Relay:          relayClient,
		Metrics:        metrics.Default(),
		Logger:         logger,
		MaxUploadBytes: defaultMaxUploadBytes,
	}
}

func (h *Handler) logger(r *http.Request) *slog.Logger {
	base := h.Logger
	if base == nil {
		base = slog.Default()
	}
	return logging.WithContext(r.Context(), base)
}

func (h *Handler) recorder() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Signup registers a new account.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("username and password are required"))
		return
	}

	user, err := h.Store.CreateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateUsername) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("username already taken"))
			return
		}
		h.logger(r).Error("signup failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to create user"))
		return
	}

	h.recorder().ObserveAuthEvent("signup")
	h.logger(r).Info("user created", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "user created"})
}

// Login verifies credentials and issues a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("username and password are required"))
		return
	}

	user, err := h.Store.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrUserNotFound):
			h.logger(r).Info("login rejected", "username", req.Username, "reason", "unknown user")
		case errors.Is(err, storage.ErrInvalidCredentials):
			h.logger(r).Info("login rejected", "username", req.Username, "reason", "password mismatch")
		default:
			h.logger(r).Error("login failed", "username", req.Username, "error", err)
			writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to authenticate"))
			return
		}
		h.recorder().ObserveAuthEvent("login_rejected")
		// The response never reveals whether the username exists.
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid credentials"))
		return
	}

	token, err := h.Tokens.Issue(user)
	if err != nil {
		h.logger(r).Error("token issue failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to authenticate"))
		return
	}

	h.recorder().ObserveAuthEvent("login")
	h.logger(r).Info("user logged in", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Health reports process liveness and datastore reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if err := h.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
