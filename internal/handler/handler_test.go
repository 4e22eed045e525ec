package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/recruit-chat/internal/middleware"
	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/service"
	"github.com/capitalize-ai/recruit-chat/internal/store"
	"github.com/capitalize-ai/recruit-chat/internal/store/memory"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
)

type testAPI struct {
	svc    *service.ChatService
	router chi.Router
}

// asUser puts the identity Auth would have set into the request context.
func asUser(userID string, role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
			ctx = context.WithValue(ctx, middleware.RoleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := logger.NewNop()
	st := memory.New(memory.WithClock(clock.NewMock()))
	svc := service.NewChatService(st, nil, service.Options{StoreTimeout: time.Second}, log)
	t.Cleanup(func() {
		svc.Close(context.Background())
		st.Close(context.Background())
	})

	chat := NewChatHandler(svc, time.Minute, log)
	admin := NewAdminHandler(svc, time.Minute, log)
	qr := NewQuickReplyHandler(svc, time.Minute, log)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(asUser("u1", model.RoleUser))
		r.Post("/chat/room", chat.Room)
		r.Get("/chat/stream", chat.Stream)
		r.Post("/chat/messages", chat.Send)
		r.Delete("/chat/messages/{messageID}", chat.Delete)
		r.Post("/chat/typing", chat.Typing)
	})
	r.Route("/admin", func(r chi.Router) {
		r.Use(asUser("op1", model.RoleAdmin))
		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Use(admin.RoomCtx)
			r.Post("/messages", admin.Send)
			r.Delete("/messages/{messageID}", admin.Delete)
			r.Post("/typing", admin.Typing)
			r.Post("/quick-replies/{id}/select", admin.SelectQuickReply)
			r.Post("/draft", admin.Draft)
			r.Get("/counts", admin.Counts)
			r.Get("/events", admin.Events)
		})
		r.Get("/quick-replies", qr.List)
		r.Post("/quick-replies", qr.Create)
		r.Put("/quick-replies/{id}", qr.Update)
		r.Delete("/quick-replies/{id}", qr.Delete)
	})
	return &testAPI{svc: svc, router: r}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{model.ErrEmptyDraft, http.StatusBadRequest},
		{fmt.Errorf("failed to send message: %w", store.ErrNotFound), http.StatusNotFound},
		{store.ErrForbidden, http.StatusForbidden},
		{service.ErrDraftingDisabled, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: boom", service.ErrRoomSetup), http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("mongo: connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		status, message := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.NotContains(t, message, "mongo")
	}
}

func TestChatHandler_RoomIsStable(t *testing.T) {
	api := newTestAPI(t)

	first := decode[model.ChatRoom](t, api.do(t, http.MethodPost, "/chat/room", ""))
	second := decode[model.ChatRoom](t, api.do(t, http.MethodPost, "/chat/room", ""))

	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, first.ID, second.ID)
}

func TestChatHandler_Send(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/chat/messages", `{"text":"はじめまして"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[model.SendMessageResponse](t, rec)
	require.NotNil(t, resp.Message)
	assert.Equal(t, model.RoleUser, resp.Message.Sender)
	assert.Nil(t, resp.Draft)

	room := decode[model.ChatRoom](t, api.do(t, http.MethodPost, "/chat/room", ""))
	assert.Equal(t, "はじめまして", room.LastMessage)
	assert.Equal(t, 1, room.UnreadCountForAdmin)
}

func TestChatHandler_SendFailureEchoesDraft(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/chat/messages", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[model.SendMessageResponse](t, rec)
	require.NotNil(t, resp.Draft)
	assert.Equal(t, "   ", *resp.Draft.Text)
	assert.NotEmpty(t, resp.Error)

	rec = api.do(t, http.MethodPost, "/admin/rooms/missing/messages", `{"text":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp = decode[model.SendMessageResponse](t, rec)
	assert.Equal(t, "hi", *resp.Draft.Text)
}

func TestChatHandler_RejectsBadInput(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name, method, path, body string
	}{
		{"malformed body", http.MethodPost, "/chat/messages", `{"text":`},
		{"relative image", http.MethodPost, "/chat/messages", `{"imageUrl":"/x.png"}`},
		{"bad message id", http.MethodDelete, "/chat/messages/a%20b", ""},
		{"bad room id", http.MethodPost, "/admin/rooms/a.b/messages", `{"text":"x"}`},
		{"empty quick reply", http.MethodPost, "/admin/quick-replies", `{"text":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestChatHandler_DeleteOthersMessageForbidden(t *testing.T) {
	api := newTestAPI(t)
	room := decode[model.ChatRoom](t, api.do(t, http.MethodPost, "/chat/room", ""))

	rec := api.do(t, http.MethodPost, "/admin/rooms/"+room.ID+"/messages", `{"text":"ようこそ"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	msg := decode[model.SendMessageResponse](t, rec).Message

	rec = api.do(t, http.MethodDelete, "/chat/messages/"+msg.ID, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodDelete, "/admin/rooms/"+room.ID+"/messages/"+msg.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTypingEndpoints(t *testing.T) {
	api := newTestAPI(t)
	room := decode[model.ChatRoom](t, api.do(t, http.MethodPost, "/chat/room", ""))

	rec := api.do(t, http.MethodPost, "/chat/typing", `{"text":"こん"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	got, err := api.svc.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.True(t, got.UserTyping)

	rec = api.do(t, http.MethodPost, "/admin/rooms/missing/typing", `{"text":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuickReplyEndpoints(t *testing.T) {
	api := newTestAPI(t)
	room := decode[model.ChatRoom](t, api.do(t, http.MethodPost, "/chat/room", ""))

	rec := api.do(t, http.MethodPost, "/admin/quick-replies", `{"category":"挨拶","text":"お問い合わせありがとうございます","sortOrder":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[model.QuickReply](t, rec)

	rec = api.do(t, http.MethodPut, "/admin/quick-replies/"+created.ID, `{"category":"挨拶","text":"ご連絡ありがとうございます","sortOrder":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ご連絡ありがとうございます", decode[model.QuickReply](t, rec).Text)

	list := decode[[]model.QuickReply](t, api.do(t, http.MethodGet, "/admin/quick-replies", ""))
	require.Len(t, list, 1)

	rec = api.do(t, http.MethodPost, "/admin/rooms/"+room.ID+"/quick-replies/"+created.ID+"/select", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sel := decode[model.SelectionResponse](t, rec)
	assert.Equal(t, "ご連絡ありがとうございます", sel.Text)
	assert.True(t, sel.Typing)

	rec = api.do(t, http.MethodPost, "/admin/rooms/missing/quick-replies/"+created.ID+"/select", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, api.svc.Presence().Len())

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, "/admin/quick-replies/"+created.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, "/admin/quick-replies/"+created.ID, "").Code)

	list = decode[[]model.QuickReply](t, api.do(t, http.MethodGet, "/admin/quick-replies", ""))
	assert.Empty(t, list)
}

func TestAdminHandler_DraftDisabled(t *testing.T) {
	api := newTestAPI(t)
	room := decode[model.ChatRoom](t, api.do(t, http.MethodPost, "/chat/room", ""))

	rec := api.do(t, http.MethodPost, "/admin/rooms/"+room.ID+"/draft", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminHandler_CountsAndEvents(t *testing.T) {
	api := newTestAPI(t)
	room := decode[model.ChatRoom](t, api.do(t, http.MethodPost, "/chat/room", ""))
	api.do(t, http.MethodPost, "/chat/messages", `{"text":"a"}`)

	counts := decode[model.MessageCounts](t, api.do(t, http.MethodGet, "/admin/rooms/"+room.ID+"/counts", ""))
	assert.Equal(t, 1, counts.Total)
	assert.Equal(t, 1, counts.UnreadFromUser)

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/admin/rooms/missing/counts", "").Code)

	page := decode[service.EventPage](t, api.do(t, http.MethodGet, "/admin/rooms/"+room.ID+"/events?after=5&limit=10", ""))
	assert.Empty(t, page.Events)
	assert.Equal(t, uint64(5), page.LastSequence)
}

func TestChatHandler_StreamPushesSnapshots(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/chat/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 16)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
				events <- name
			}
		}
	}()

	next := func() string {
		select {
		case e := <-events:
			return e
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
			return ""
		}
	}

	assert.Equal(t, "connected", next())
	assert.Equal(t, "room", next())
	assert.Equal(t, "messages", next())

	rec := api.do(t, http.MethodPost, "/chat/messages", `{"text":"hi"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	seen := map[string]bool{}
	for !seen["messages"] {
		seen[next()] = true
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	ok := NewHealthHandler(map[string]Pinger{"store": fakePinger{}, "nats": nil})

	rec := httptest.NewRecorder()
	ok.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	ok.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := NewHealthHandler(map[string]Pinger{"store": fakePinger{err: errors.New("down")}})
	rec = httptest.NewRecorder()
	down.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store unavailable")
}
