// Package api exposes HTTP handlers for the gatherings service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/gatherings/internal/auth"
	"example.com/gatherings/internal/domain"
)

// PaginationHeader carries feed paging metadata outside the item array.
const PaginationHeader = "Pagination"

// Handler coordinates HTTP requests with the command bus.
type Handler struct {
	bus *domain.Bus
}

// NewHandler builds a Handler.
func NewHandler(bus *domain.Bus) *Handler {
	return &Handler{bus: bus}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/activities", h.activities)
	mux.HandleFunc("/activities/", h.activityByID)
	mux.HandleFunc("/profiles/", h.profiles)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// activityByID serves /activities/{id} and /activities/{id}/attend.
func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/activities/"), "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.getActivity(w, r, id)
	case action == "attend" && r.Method == http.MethodPost:
		h.toggleAttendance(w, r, id)
	case action == "" || action == "attend":
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

// profiles serves /profiles/me and /profiles/{username}/activities.
func (h *Handler) profiles(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/profiles/"), "/")
	username, action, _ := strings.Cut(rest, "/")

	switch {
	case username == "me" && action == "":
		if r.Method != http.MethodPut {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.syncProfile(w, r)
	case username != "" && action == "activities":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.userActivities(w, r, username)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	res := domain.Send[domain.CreateActivityCommand, domain.ActivityView](r.Context(), h.bus, domain.CreateActivityCommand{
		HostID:      claims.Subject,
		Title:       req.Title,
		Date:        req.Date,
		Description: req.Description,
		Category:    req.Category,
		City:        req.City,
		Venue:       req.Venue,
	})
	respond(w, res, http.StatusCreated)
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}
	res := domain.Send[domain.ActivityDetailsQuery, domain.ActivityView](r.Context(), h.bus, domain.ActivityDetailsQuery{
		ActivityID: id,
		ViewerID:   claims.Subject,
	})
	respond(w, res, http.StatusOK)
}

func (h *Handler) toggleAttendance(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}
	res := domain.Send[domain.ToggleAttendanceCommand, domain.Unit](r.Context(), h.bus, domain.ToggleAttendanceCommand{
		ActivityID: id,
		UserID:     claims.Subject,
	})
	if res.Outcome() == domain.OutcomeSuccess {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respond(w, res, http.StatusNoContent)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	filter, err := parseFeedFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	filter.ViewerID = claims.Subject

	res := domain.Send[domain.FeedFilter, domain.Page[domain.ActivityView]](r.Context(), h.bus, filter)
	page, ok := res.Value()
	if !ok {
		respond(w, res, http.StatusOK)
		return
	}

	meta, err := json.Marshal(PaginationView{
		CurrentPage:  page.CurrentPage,
		ItemsPerPage: page.PageSize,
		TotalItems:   page.TotalCount,
		TotalPages:   page.TotalPages,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.Header().Set(PaginationHeader, string(meta))
	w.Header().Add("Access-Control-Expose-Headers", PaginationHeader)
	writeJSON(w, http.StatusOK, page.Items)
}

func (h *Handler) userActivities(w http.ResponseWriter, r *http.Request, username string) {
	if _, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite); !ok {
		return
	}
	res := domain.Send[domain.UserActivitiesQuery, []domain.UserActivity](r.Context(), h.bus, domain.UserActivitiesQuery{
		Username:  username,
		Predicate: domain.UserActivityPredicate(strings.ToLower(r.URL.Query().Get("predicate"))),
	})
	respond(w, res, http.StatusOK)
}

func (h *Handler) syncProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r)
	if !ok {
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	res := domain.Send[domain.SyncProfileCommand, domain.User](r.Context(), h.bus, domain.SyncProfileCommand{
		UserID:      claims.Subject,
		Username:    claims.Username,
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		Image:       req.Image,
	})
	if errors.Is(res.Err(), domain.ErrConflict) {
		writeError(w, http.StatusConflict, "conflict", res.Message())
		return
	}
	respond(w, res, http.StatusOK)
}

func parseFeedFilter(r *http.Request) (domain.FeedFilter, error) {
	q := r.URL.Query()
	var filter domain.FeedFilter

	for _, p := range []struct {
		name   string
		target *int
	}{
		{"pageNumber", &filter.PageNumber},
		{"pageSize", &filter.PageSize},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return filter, errors.New(p.name + " must be a positive integer")
		}
		*p.target = n
	}

	if raw := q.Get("startDate"); raw != "" {
		start, err := parseDate(raw)
		if err != nil {
			return filter, errors.New("startDate must be an RFC 3339 timestamp or a YYYY-MM-DD date")
		}
		filter.StartDate = &start
	}

	for _, p := range []struct {
		name   string
		target *bool
	}{
		{"isGoing", &filter.IsGoing},
		{"isHost", &filter.IsHost},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.New(p.name + " must be true or false")
		}
		*p.target = b
	}
	return filter, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, err := auth.Authorize(r.Context(), scopes...)
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return nil, false
	case err != nil:
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
		return nil, false
	}
	return claims, true
}

// respond maps a result envelope onto the HTTP response.
func respond[T any](w http.ResponseWriter, res domain.Result[T], successStatus int) {
	switch res.Outcome() {
	case domain.OutcomeSuccess:
		v, _ := res.Value()
		writeJSON(w, successStatus, v)
	case domain.OutcomeNotFound:
		writeError(w, http.StatusNotFound, "not_found", res.Message())
	default:
		code := "bad_request"
		if errors.Is(res.Err(), domain.ErrValidation) {
			code = "validation_failed"
		}
		writeError(w, http.StatusBadRequest, code, res.Message())
	}
}

// CreateActivityRequest is the payload for POST /activities.
type CreateActivityRequest struct {
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	City        string    `json:"city"`
	Venue       string    `json:"venue"`
}

// ProfileRequest is the payload for PUT /profiles/me.
type ProfileRequest struct {
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	Image       string `json:"image"`
}

// PaginationView is the JSON carried in the Pagination header.
type PaginationView struct {
	CurrentPage  int `json:"currentPage"`
	ItemsPerPage int `json:"itemsPerPage"`
	TotalItems   int `json:"totalItems"`
	TotalPages   int `json:"totalPages"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
