package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/amplimindcc/backend-sub000/internal/errdefs"
	"github.com/amplimindcc/backend-sub000/internal/service"
	"github.com/amplimindcc/backend-sub000/pkg/logger"
)

// userHeader carries the authenticated identity set by the fronting auth
// layer; session mechanics are outside this service.
const userHeader = "X-User-Email"

const maxUploadBytes = 256 << 20

type Handler struct {
	svc     *service.ChallengeService
	limiter Admitter
	log     *logger.Logger
}

func NewHandler(svc *service.ChallengeService, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Router(limiter Admitter) chi.Router {
	h.limiter = limiter

	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(h.log))
	r.Use(NewRateLimitMiddleware(limiter))

	r.Post("/invites", h.invite)
	r.Post("/register", h.register)
	r.Post("/submissions", h.submit)
	r.Post("/submissions/review", h.markReviewed)
	r.Get("/submissions/report", h.reviewReport)
	r.Post("/password-reset/request", h.requestPasswordReset)
	r.Post("/password-reset", h.resetPassword)
	r.Post("/rate-limit/reset", h.resetRateLimit)

	return r
}

func (h *Handler) invite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		ProjectID string `json:"project_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid project id")
		return
	}

	tok, err := h.svc.Invite(r.Context(), req.Email, projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": tok})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Register(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	email := r.Header.Get(userHeader)
	if email == "" {
		writeErrorMessage(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, _, err := r.FormFile("archive")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "missing archive file")
		return
	}
	defer file.Close()

	archiveBytes, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "failed to read archive")
		return
	}

	description := r.FormValue("description")
	if err := h.svc.Submit(r.Context(), email, archiveBytes, description); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markReviewed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.MarkReviewed(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reviewReport(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeErrorMessage(w, http.StatusBadRequest, "missing email")
		return
	}

	report, err := h.svc.ReviewReport(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Write(report)
}

func (h *Handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tok, err := h.svc.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": tok})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resetRateLimit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identity == "" {
		writeErrorMessage(w, http.StatusBadRequest, "missing identity")
		return
	}

	h.limiter.Reset(r.Context(), req.Identity)
	w.WriteHeader(http.StatusNoContent)
}

// mapErr translates the service error taxonomy onto HTTP statuses. Each
// client-caused kind gets its own status so the web layer never collapses
// distinct failures into one.
func mapErr(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, errdefs.ErrUnsafeArchive):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errdefs.ErrMalformedArchive),
		errors.Is(err, errdefs.ErrTokenInvalid),
		errors.Is(err, errdefs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errdefs.ErrTokenExpired):
		return http.StatusPreconditionFailed
	case errors.Is(err, errdefs.ErrTokenConsumed),
		errors.Is(err, errdefs.ErrConflict),
		errors.Is(err, errdefs.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errdefs.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, errdefs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errdefs.ErrRemoteUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorMessage(w, mapErr(err), err.Error())
}

func writeErrorMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	data, _ := json.Marshal(payload)
	w.Write(data)
}
