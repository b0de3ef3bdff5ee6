package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"whisper.bot/config"
	"whisper.bot/internal/metrics"
	"whisper.bot/internal/models"
	"whisper.bot/internal/reveal"
	"whisper.bot/internal/store"
)

// userIDHeader carries the platform identity of the user the bot is acting
// for. The bot process is trusted to set it.
const userIDHeader = "X-User-ID"

type Handler struct {
	store  store.Backend
	engine *reveal.Engine
	config *config.Config
	logger zerolog.Logger
}

func NewHandler(s store.Backend, e *reveal.Engine, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		store:  s,
		engine: e,
		config: cfg,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

type CreateRequest struct {
	ID       int64  `json:"id"` // carrier message id
	Viewer   int64  `json:"viewer"`
	Text     string `json:"text"`
	Once     bool   `json:"once"`
	UseSaved bool   `json:"use_saved,omitempty"`
}

type CreateResponse struct {
	ID     int64 `json:"id"`
	Owner  int64 `json:"owner"`
	Viewer int64 `json:"viewer"`
	Once   bool  `json:"once"`
}

type RevealResponse struct {
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	Once     bool   `json:"once"`
	Consumed bool   `json:"consumed"`
}

type SaveRequest struct {
	Text string `json:"text"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string      `json:"status"`
	Store  store.Stats `json:"store"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("store stats failed")
		h.json(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
		return
	}
	h.json(w, http.StatusOK, HealthResponse{Status: "ok", Store: st})
}

func (h *Handler) CreateWhisper(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requester(w, r)
	if !ok {
		return
	}

	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Viewer == owner && !h.config.Whispers.AllowSelf {
		h.error(w, http.StatusBadRequest, "you can't whisper to yourself")
		return
	}

	text := req.Text
	if text == "" && req.UseSaved {
		slot, err := h.store.Slot(r.Context(), owner)
		if err != nil {
			h.handleStoreError(w, err)
			return
		}
		if !slot.HasText() {
			h.error(w, http.StatusBadRequest, "no saved message")
			return
		}
		text = *slot.Text
	}

	if !h.validText(w, text) {
		return
	}

	whisper, err := models.NewWhisper(req.ID, owner, req.Viewer, text, req.Once)
	if err != nil {
		h.error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.Create(r.Context(), whisper); err != nil {
		if errors.Is(err, reveal.ErrExists) {
			h.error(w, http.StatusConflict, "a whisper with this id already exists")
			return
		}
		h.handleStoreError(w, err)
		return
	}

	metrics.WhispersCreated.WithLabelValues(strconv.FormatBool(whisper.Once)).Inc()
	h.logger.Info().
		Int64("message_id", whisper.ID).
		Int64("owner", whisper.Owner).
		Int64("viewer", whisper.Viewer).
		Bool("once", whisper.Once).
		Msg("whisper created")

	h.json(w, http.StatusCreated, CreateResponse{
		ID:     whisper.ID,
		Owner:  whisper.Owner,
		Viewer: whisper.Viewer,
		Once:   whisper.Once,
	})
}

func (h *Handler) RevealWhisper(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	res, err := h.engine.Reveal(r.Context(), requester, id)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	switch res.Outcome {
	case reveal.Revealed:
		h.json(w, http.StatusOK, RevealResponse{
			ID:       id,
			Text:     res.Whisper.Text,
			Once:     res.Whisper.Once,
			Consumed: res.Consumed,
		})
	case reveal.Forbidden:
		h.error(w, http.StatusForbidden, "you are not meant to view this whisper")
	default:
		h.error(w, http.StatusNotFound, "whisper not found; one-time whispers expire after being read")
	}
}

func (h *Handler) RetractWhisper(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	res, err := h.engine.Retract(r.Context(), requester, id)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	switch res.Outcome {
	case reveal.Retracted:
		w.WriteHeader(http.StatusNoContent)
	case reveal.Forbidden:
		h.error(w, http.StatusForbidden, "only the sender can delete this whisper")
	default:
		h.error(w, http.StatusNotFound, "whisper not found")
	}
}

func (h *Handler) GetSaved(w http.ResponseWriter, r *http.Request) {
	user, ok := h.slotOwner(w, r)
	if !ok {
		return
	}

	slot, err := h.store.Slot(r.Context(), user)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}
	h.json(w, http.StatusOK, slot)
}

func (h *Handler) SaveMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.slotOwner(w, r)
	if !ok {
		return
	}

	var req SaveRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.validText(w, req.Text) {
		return
	}

	slot, err := h.store.SaveMessage(r.Context(), user, req.Text)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}
	h.json(w, http.StatusOK, slot)
}

func (h *Handler) ClearMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.slotOwner(w, r)
	if !ok {
		return
	}

	slot, err := h.store.ClearMessage(r.Context(), user)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}
	h.json(w, http.StatusOK, slot)
}

func (h *Handler) requester(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get(userIDHeader), 10, 64)
	if err != nil || id <= 0 {
		h.error(w, http.StatusBadRequest, userIDHeader+" header is required")
		return 0, false
	}
	return id, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.error(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// slotOwner returns the user whose slot is addressed, which must be the
// requester.
func (h *Handler) slotOwner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	requester, ok := h.requester(w, r)
	if !ok {
		return 0, false
	}
	user, ok := h.pathID(w, r)
	if !ok {
		return 0, false
	}
	if user != requester {
		h.error(w, http.StatusForbidden, "saved messages are private")
		return 0, false
	}
	return user, true
}

func (h *Handler) validText(w http.ResponseWriter, text string) bool {
	if text == "" {
		h.error(w, http.StatusBadRequest, "text is required")
		return false
	}
	if n := utf8.RuneCountInString(text); n > h.config.Whispers.MaxTextLength {
		h.error(w, http.StatusBadRequest, "text is longer than "+strconv.Itoa(h.config.Whispers.MaxTextLength)+" characters")
		return false
	}
	return true
}

func (h *Handler) json(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

func (h *Handler) error(w http.ResponseWriter, status int, message string) {
	writeError(w, status, message)
}

// decode reads a JSON body into v, answering 413 when the body limit was hit
// and 400 for anything else.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.error(w, http.StatusRequestEntityTooLarge, "request body too large")
	} else {
		h.error(w, http.StatusBadRequest, "invalid request body")
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func (h *Handler) handleStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSlotsDisabled):
		h.error(w, http.StatusNotFound, "saved messages are disabled")
	case errors.Is(err, store.ErrPersist):
		h.logger.Error().Err(err).Msg("whisper data could not be written")
		h.error(w, http.StatusInternalServerError, "storage failure")
	default:
		h.logger.Error().Err(err).Msg("store error")
		h.error(w, http.StatusInternalServerError, "internal error")
	}
}
