// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/recruit-chat/internal/middleware"
	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/service"
	"github.com/capitalize-ai/recruit-chat/internal/store"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
)

// ChatHandler serves the user's own chat page.
type ChatHandler struct {
	service   *service.ChatService
	heartbeat time.Duration
	logger    *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.ChatService, heartbeat time.Duration, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service:   svc,
		heartbeat: heartbeat,
		logger:    log,
	}
}

// Room handles POST /api/v1/chat/room
func (h *ChatHandler) Room(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.Resolver().Resolve(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// Stream handles GET /api/v1/chat/stream
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	sess, err := h.service.OpenUserSession(ctx, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer sess.Close(context.Background())

	serveSession(ctx, w, sess, h.heartbeat, h.logger.WithRequest(middleware.GetCorrelationID(ctx), userID, string(model.RoleUser)))
}

// Send handles POST /api/v1/chat/messages
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Text, req.ImageURL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	room, err := h.service.Resolver().Resolve(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sendMessage(w, r, h.service, room.ID, model.RoleUser, &req)
}

// Delete handles DELETE /api/v1/chat/messages/{messageID}
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	if err := middleware.ValidateMessageID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	room, err := h.service.Resolver().Resolve(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), room.ID, messageID, model.RoleUser); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Typing handles POST /api/v1/chat/typing
func (h *ChatHandler) Typing(w http.ResponseWriter, r *http.Request) {
	var req model.TypingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTypingText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	room, err := h.service.Resolver().Resolve(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	keystroke(w, r, h.service, h.logger, room.ID, model.RoleUser, req.Text)
}

// sendMessage appends req as role. On failure the draft is echoed back so
// the page can keep it for a retry.
func sendMessage(w http.ResponseWriter, r *http.Request, svc *service.ChatService, roomID string, role model.Role, req *model.SendMessageRequest) {
	msg, err := svc.Send(r.Context(), roomID, &model.MessageDraft{
		Sender:   role,
		Text:     req.Text,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		status, message := statusFor(err)
		writeJSON(w, status, &model.SendMessageResponse{
			Draft: req,
			Error: message,
		})
		return
	}
	writeJSON(w, http.StatusCreated, &model.SendMessageResponse{Message: msg})
}

// keystroke forwards input contents to the typing publisher. Typing is
// best effort: only a missing room is reported to the caller.
func keystroke(w http.ResponseWriter, r *http.Request, svc *service.ChatService, log *logger.Logger, roomID string, role model.Role, text string) {
	if err := svc.Keystroke(r.Context(), roomID, role, text); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		log.Warn("typing update failed",
			zap.String("room_id", roomID),
			zap.String("role", string(role)),
			zap.Error(err),
		)
	}
	w.WriteHeader(http.StatusNoContent)
}

// serveSession streams a session's snapshots as room and messages events.
func serveSession(ctx context.Context, w http.ResponseWriter, sess *service.Session, heartbeat time.Duration, log *logger.Logger) {
	sse, ok := openSSE(w)
	if !ok {
		return
	}

	sse.send("connected", map[string]string{
		"room_id": sess.RoomID(),
		"role":    string(sess.Viewer()),
	})

	events := newChangeFilter(sse)
	err := pump(ctx, sse, heartbeat, sess.Updates(), sess.Err, func(snap service.Snapshot) error {
		if err := events.send("room", snap.Room); err != nil {
			return err
		}
		return events.send("messages", snap.Messages)
	})
	if err != nil {
		log.Warn("chat stream ended with error", zap.String("room_id", sess.RoomID()), zap.Error(err))
		return
	}
	log.Debug("chat stream closed", zap.String("room_id", sess.RoomID()))
}
