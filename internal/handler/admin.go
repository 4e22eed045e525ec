package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/recruit-chat/internal/middleware"
	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/service"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
)

// AdminHandler serves the operator inbox and room pages.
type AdminHandler struct {
	service   *service.ChatService
	heartbeat time.Duration
	logger    *logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(svc *service.ChatService, heartbeat time.Duration, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		service:   svc,
		heartbeat: heartbeat,
		logger:    log,
	}
}

// RoomCtx validates the roomID path parameter for every room route.
func (h *AdminHandler) RoomCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := middleware.ValidateRoomID(chi.URLParam(r, "roomID")); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Inbox handles GET /api/v1/admin/rooms/stream
func (h *AdminHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sub, err := h.service.SubscribeInbox(ctx)
	if err != nil {
		h.logger.Error("failed to subscribe to inbox", zap.Error(err))
		writeServiceError(w, err)
		return
	}
	defer sub.Close()

	sse, ok := openSSE(w)
	if !ok {
		return
	}

	events := newChangeFilter(sse)
	err = pump(ctx, sse, h.heartbeat, sub.Updates(), sub.Err, func(inbox model.Inbox) error {
		if err := events.send("rooms", inbox.Rooms); err != nil {
			return err
		}
		return events.send("total_unread", map[string]int{"total_unread": inbox.TotalUnread})
	})
	if err != nil {
		h.logger.Warn("inbox stream ended with error", zap.Error(err))
	}
}

// RoomStream handles GET /api/v1/admin/rooms/{roomID}/stream
func (h *AdminHandler) RoomStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := chi.URLParam(r, "roomID")

	sess, err := h.service.OpenAdminSession(ctx, roomID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer sess.Close(context.Background())

	serveSession(ctx, w, sess, h.heartbeat, h.logger.WithRequest(middleware.GetCorrelationID(ctx), middleware.GetUserID(ctx), string(model.RoleAdmin)))
}

// Send handles POST /api/v1/admin/rooms/{roomID}/messages
func (h *AdminHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Text, req.ImageURL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendMessage(w, r, h.service, chi.URLParam(r, "roomID"), model.RoleAdmin, &req)
}

// Delete handles DELETE /api/v1/admin/rooms/{roomID}/messages/{messageID}
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	if err := middleware.ValidateMessageID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "roomID"), messageID, model.RoleAdmin); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Typing handles POST /api/v1/admin/rooms/{roomID}/typing
func (h *AdminHandler) Typing(w http.ResponseWriter, r *http.Request) {
	var req model.TypingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTypingText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keystroke(w, r, h.service, h.logger, chi.URLParam(r, "roomID"), model.RoleAdmin, req.Text)
}

// SelectQuickReply handles POST /api/v1/admin/rooms/{roomID}/quick-replies/{id}/select
func (h *AdminHandler) SelectQuickReply(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateQuickReplyID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.service.SelectQuickReply(r.Context(), chi.URLParam(r, "roomID"), id)
	h.writeSelection(w, resp, err)
}

// Draft handles POST /api/v1/admin/rooms/{roomID}/draft
func (h *AdminHandler) Draft(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.DraftReply(r.Context(), chi.URLParam(r, "roomID"))
	h.writeSelection(w, resp, err)
}

// writeSelection returns the text to put into the input. A failed typing
// write still returns the text, with typing left false.
func (h *AdminHandler) writeSelection(w http.ResponseWriter, resp *model.SelectionResponse, err error) {
	if resp == nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Counts handles GET /api/v1/admin/rooms/{roomID}/counts
func (h *AdminHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.Counts(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// Events handles GET /api/v1/admin/rooms/{roomID}/events
func (h *AdminHandler) Events(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if s := r.URL.Query().Get("after"); s != "" {
		if parsed, err := strconv.ParseUint(s, 10, 64); err == nil {
			after = parsed
		}
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	page, err := h.service.RoomEvents(r.Context(), chi.URLParam(r, "roomID"), after, limit)
	if err != nil {
		h.logger.Error("failed to read room events", zap.Error(err))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
