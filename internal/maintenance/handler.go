package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"contactbook/internal/observability"
)

type UserPurger interface {
	DeleteStaleUnverified(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// CleanupHandler purges unverified accounts whose verification window lapsed.
// Meant to be hit by a scheduler; guarded by a shared cron secret. With no
// secret configured the endpoint pretends not to exist.
type CleanupHandler struct {
	purger              UserPurger
	logger              *observability.Logger
	cronSecret          string
	unverifiedRetention time.Duration
	batchSize           int
}

func NewCleanupHandler(
	purger UserPurger,
	logger *observability.Logger,
	cronSecret string,
	unverifiedRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	if unverifiedRetention <= 0 {
		unverifiedRetention = 7 * 24 * time.Hour
	}

	return &CleanupHandler{
		purger:              purger,
		logger:              logger,
		cronSecret:          strings.TrimSpace(cronSecret),
		unverifiedRetention: unverifiedRetention,
		batchSize:           batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cutoff := time.Now().UTC().Add(-h.unverifiedRetention)
	deleted, err := h.purger.DeleteStaleUnverified(r.Context(), cutoff, h.batchSize)
	if err != nil {
		h.logger.Error("user_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("user_cleanup_completed", map[string]any{
		"deleted_unverified_users": deleted,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                   "ok",
		"deleted_unverified_users": deleted,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
