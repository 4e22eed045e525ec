package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/recruit-chat/internal/middleware"
	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/service"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
)

// QuickReplyHandler manages operator quick reply templates.
type QuickReplyHandler struct {
	service   *service.ChatService
	heartbeat time.Duration
	logger    *logger.Logger
}

// NewQuickReplyHandler creates a new quick reply handler.
func NewQuickReplyHandler(svc *service.ChatService, heartbeat time.Duration, log *logger.Logger) *QuickReplyHandler {
	return &QuickReplyHandler{
		service:   svc,
		heartbeat: heartbeat,
		logger:    log,
	}
}

// List handles GET /api/v1/admin/quick-replies
func (h *QuickReplyHandler) List(w http.ResponseWriter, r *http.Request) {
	replies, err := h.service.ListQuickReplies(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if replies == nil {
		replies = []model.QuickReply{}
	}
	writeJSON(w, http.StatusOK, replies)
}

// Create handles POST /api/v1/admin/quick-replies
func (h *QuickReplyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.QuickReplyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	qr, err := h.service.CreateQuickReply(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, qr)
}

// Update handles PUT /api/v1/admin/quick-replies/{id}
func (h *QuickReplyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateQuickReplyID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.QuickReplyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	qr, err := h.service.UpdateQuickReply(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, qr)
}

// Delete handles DELETE /api/v1/admin/quick-replies/{id}
func (h *QuickReplyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateQuickReplyID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.DeleteQuickReply(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream handles GET /api/v1/admin/quick-replies/stream
func (h *QuickReplyHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sub, err := h.service.SubscribeQuickReplies(ctx)
	if err != nil {
		h.logger.Error("failed to subscribe to quick replies", zap.Error(err))
		writeServiceError(w, err)
		return
	}
	defer sub.Close()

	sse, ok := openSSE(w)
	if !ok {
		return
	}

	err = pump(ctx, sse, h.heartbeat, sub.Updates(), sub.Err, func(replies []model.QuickReply) error {
		if replies == nil {
			replies = []model.QuickReply{}
		}
		return sse.send("quick_replies", replies)
	})
	if err != nil {
		h.logger.Warn("quick reply stream ended with error", zap.Error(err))
	}
}
