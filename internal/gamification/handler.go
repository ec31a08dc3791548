package gamification

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/laxlab/drill-rewards/internal/middleware"
	"github.com/laxlab/drill-rewards/internal/models"
	"go.uber.org/zap"
)

type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(service *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, log: log.Named("http")}
}

func getUserID(r *http.Request) (int64, bool) {
	return middleware.UserIDFromContext(r.Context())
}

func pathUserID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

// ── Workout Completion ──────────────────────────────────

func (h *Handler) CompleteWorkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.CompleteWorkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	resp, err := h.service.CompleteWorkout(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, err, PendingMessage)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ── Streak ──────────────────────────────────────────────

func (h *Handler) GetStreak(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	resp, err := h.service.GetStreak(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Wallet ──────────────────────────────────────────────

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	resp, err := h.service.GetWallet(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	limit := intQueryParam(r.URL.Query(), "limit", defaultHistoryLimit)

	resp, err := h.service.History(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, err, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Admin ───────────────────────────────────────────────

func (h *Handler) AdminResetStreak(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid user id"})
		return
	}

	resp, err := h.service.ResetStreak(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) AdminAdjustPoints(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid user id"})
		return
	}

	var req models.AdjustPointsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.service.AdjustPoints(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, err, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) AdminReconcile(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid user id"})
		return
	}

	resp, err := h.service.Reconcile(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) AdminPutDrill(w http.ResponseWriter, r *http.Request) {
	var d models.DrillDescriptor
	if !decodeBody(w, r, &d) {
		return
	}
	d.DrillID = mux.Vars(r)["drill_id"]

	if err := h.service.PutDrill(r.Context(), d); err != nil {
		h.writeError(w, err, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ── Helpers ─────────────────────────────────────────────

// PendingMessage is shown when an award could not be committed.
const PendingMessage = "Your result was recorded but points are pending"

const maxBodyBytes = 1 << 20

// decodeBody reads a JSON body of at most maxBodyBytes into v, writing the
// error response itself when it cannot.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "Request body too large"})
		return false
	}
	writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
	return false
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidTimingData),
		errors.Is(err, ErrInvalidCompletion),
		errors.Is(err, ErrInvalidAdjustment):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrUnknownDrill), errors.Is(err, ErrInvalidDrill):
		writeJSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrConcurrencyConflict):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: PendingMessage})
	default:
		h.log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: fallback})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func intQueryParam(query url.Values, key string, defaultVal int) int {
	s := query.Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}
