package contact

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"

	"contactbook/internal/auth"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
var phoneRegex = regexp.MustCompile(`^\+?[0-9 ()-]{5,20}$`)

const maxJSONBodyBytes = 1 << 20

type Store interface {
	Create(ctx context.Context, userID int64, input ContactInput) (Contact, error)
	ListByUser(ctx context.Context, userID int64) ([]Contact, error)
	GetByUser(ctx context.Context, userID, contactID int64) (Contact, error)
	Update(ctx context.Context, userID, contactID int64, input ContactInput) (Contact, error)
	Delete(ctx context.Context, userID, contactID int64) error
	Search(ctx context.Context, userID int64, query string) ([]Contact, error)
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	c, err := h.store.Create(r.Context(), userID, input)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create contact")
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	contacts, err := h.store.ListByUser(r.Context(), userID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list contacts")
		return
	}

	writeJSON(w, http.StatusOK, contacts)
}

func (h *Handler) GetContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	contactID, ok := parseContactID(w, r)
	if !ok {
		return
	}

	c, err := h.store.GetByUser(r.Context(), userID, contactID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "contact not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to get contact")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	contactID, ok := parseContactID(w, r)
	if !ok {
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	c, err := h.store.Update(r.Context(), userID, contactID, input)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "contact not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update contact")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	contactID, ok := parseContactID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), userID, contactID); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "contact not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete contact")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SearchContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	contacts, err := h.store.Search(r.Context(), userID, query)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to search contacts")
		return
	}

	writeJSON(w, http.StatusOK, contacts)
}

// UpcomingBirthdays lists contacts whose birthday falls within the next
// seven days, year boundary included.
func (h *Handler) UpcomingBirthdays(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	contacts, err := h.store.ListByUser(r.Context(), userID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list contacts")
		return
	}

	writeJSON(w, http.StatusOK, filterUpcomingBirthdays(contacts, time.Now().UTC()))
}

func filterUpcomingBirthdays(contacts []Contact, now time.Time) []Contact {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	cutoff := today.AddDate(0, 0, 7)

	upcoming := make([]Contact, 0)
	for _, c := range contacts {
		if c.Birthday.IsZero() {
			continue
		}
		next := time.Date(today.Year(), c.Birthday.Month(), c.Birthday.Day(), 0, 0, 0, 0, time.UTC)
		if next.Before(today) {
			next = next.AddDate(1, 0, 0)
		}
		if !next.After(cutoff) {
			upcoming = append(upcoming, c)
		}
	}

	return upcoming
}

func parseContactID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid contact id")
		return 0, false
	}
	return id, true
}

func parseInput(w http.ResponseWriter, r *http.Request) (ContactInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input ContactInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return ContactInput{}, false
	}

	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = strings.TrimSpace(input.Email)
	input.Phone = strings.TrimSpace(input.Phone)

	if input.FirstName == "" || !utf8.ValidString(input.FirstName) || len(input.FirstName) > 100 {
		writeError(w, http.StatusBadRequest, "first_name is invalid")
		return ContactInput{}, false
	}
	if input.LastName == "" || !utf8.ValidString(input.LastName) || len(input.LastName) > 100 {
		writeError(w, http.StatusBadRequest, "last_name is invalid")
		return ContactInput{}, false
	}
	if !emailRegex.MatchString(input.Email) || len(input.Email) > 254 {
		writeError(w, http.StatusBadRequest, "email is invalid")
		return ContactInput{}, false
	}
	if !phoneRegex.MatchString(input.Phone) {
		writeError(w, http.StatusBadRequest, "phone is invalid")
		return ContactInput{}, false
	}
	if input.Birthday.IsZero() {
		writeError(w, http.StatusBadRequest, "birthday is required")
		return ContactInput{}, false
	}
	if input.ExtraInfo != nil && (len(*input.ExtraInfo) > 1000 || !utf8.ValidString(*input.ExtraInfo)) {
		writeError(w, http.StatusBadRequest, "extra_info is invalid")
		return ContactInput{}, false
	}

	return input, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
