package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
)

const (
	testSecret     = "test-secret"
	testAdminScope = "chat:admin"
)

func signToken(t *testing.T, secret, subject string, scopes ...string) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: scopes,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

type identity struct {
	userID string
	role   model.Role
}

func authRequest(t *testing.T, header string, chain func(http.Handler) http.Handler) (*httptest.ResponseRecorder, *identity) {
	t.Helper()
	var got *identity
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = &identity{userID: GetUserID(r.Context()), role: GetRole(r.Context())}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/room", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got
}

func TestAuth(t *testing.T) {
	auth := Auth(testSecret, testAdminScope)

	tests := []struct {
		name     string
		header   string
		status   int
		wantRole model.Role
	}{
		{name: "missing header", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "bad signature", header: "Bearer " + signToken(t, "other", "u1"), status: http.StatusUnauthorized},
		{name: "no subject", header: "Bearer " + signToken(t, testSecret, ""), status: http.StatusUnauthorized},
		{name: "user", header: "Bearer " + signToken(t, testSecret, "u1"), status: http.StatusNoContent, wantRole: model.RoleUser},
		{name: "admin scope", header: "bearer " + signToken(t, testSecret, "op1", "chat:read", testAdminScope), status: http.StatusNoContent, wantRole: model.RoleAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, got := authRequest(t, tt.header, auth)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusNoContent {
				assert.Nil(t, got)
				assert.Contains(t, rec.Body.String(), `"error"`)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantRole, got.role)
		})
	}
}

func TestRequireScope(t *testing.T) {
	chain := func(next http.Handler) http.Handler {
		return Auth(testSecret, testAdminScope)(RequireScope(testAdminScope)(next))
	}

	rec, _ := authRequest(t, "Bearer "+signToken(t, testSecret, "u1"), chain)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, got := authRequest(t, "Bearer "+signToken(t, testSecret, "op1", testAdminScope), chain)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "op1", got.userID)
}

func TestLogging_PropagatesCorrelationID(t *testing.T) {
	var seen string
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))
}

func TestLogging_KeepsFlusher(t *testing.T) {
	var flushable bool
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, flushable)
}

func TestValidateIDs(t *testing.T) {
	valid := []string{"65f1c0a2b3d4e5f601234567", "0b6f7a7e-3f21-4c59-9d6a-3c1e2f8b9a10", "room_1"}
	invalid := []string{"", "../etc", "a b", strings.Repeat("a", 65), "ルーム"}

	for _, id := range valid {
		assert.NoError(t, ValidateRoomID(id), id)
		assert.NoError(t, ValidateMessageID(id), id)
		assert.NoError(t, ValidateQuickReplyID(id), id)
	}
	for _, id := range invalid {
		assert.Error(t, ValidateRoomID(id), id)
	}
}

func TestValidateMessageContent(t *testing.T) {
	str := func(s string) *string { return &s }

	tests := []struct {
		name     string
		text     *string
		imageURL *string
		wantErr  bool
	}{
		{name: "text", text: str("こんにちは")},
		{name: "nothing", wantErr: false},
		{name: "max runes", text: str(strings.Repeat("あ", maxMessageRunes))},
		{name: "too long", text: str(strings.Repeat("あ", maxMessageRunes+1)), wantErr: true},
		{name: "invalid utf8", text: str("\xff"), wantErr: true},
		{name: "image", imageURL: str("https://cdn.example.com/a.png")},
		{name: "relative image", imageURL: str("/a.png"), wantErr: true},
		{name: "javascript image", imageURL: str("javascript:alert(1)"), wantErr: true},
		{name: "long image", imageURL: str("https://e.com/" + strings.Repeat("a", maxImageURLLen)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageContent(tt.text, tt.imageURL)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTypingText(t *testing.T) {
	assert.NoError(t, ValidateTypingText(""))
	assert.NoError(t, ValidateTypingText(strings.Repeat("a", maxTypingRunes)))
	assert.Error(t, ValidateTypingText(strings.Repeat("a", maxTypingRunes+1)))
}
