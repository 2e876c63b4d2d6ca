package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amici-chat/internal/auth"
	"amici-chat/internal/config"
	"amici-chat/internal/delivery"
	"amici-chat/internal/handlers"
	"amici-chat/internal/logging"
	"amici-chat/internal/messaging"
	"amici-chat/internal/models"
	"amici-chat/internal/presence"
	"amici-chat/internal/registry"
	"amici-chat/internal/repositories"
	"amici-chat/internal/ws"
)

type testApp struct {
	engine *gin.Engine
	tokens *auth.JWT
	store  *repositories.MemoryStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Service:     "amici-chat",
		Environment: "test",
		WS: config.WSConfig{
			EchoToOrigin:    true,
			SendBuffer:      8,
			PongWait:        time.Minute,
			WriteWait:       time.Second,
			MaxMessageBytes: 4096,
		},
	}
	log := logging.Discard()
	store := repositories.NewMemoryStore()
	tokens := auth.NewJWT("test-secret", time.Hour)
	reg := registry.New(4)
	hub := ws.NewHub()
	tracker := presence.NewLocalTracker(reg)
	router := delivery.NewRouter(reg, store, log, true)
	svc := messaging.NewService(store, store, store, router, nil, log)
	wsHandler := ws.NewHandler(reg, hub, store, svc, tokens, tracker, log, cfg.WS)
	router.OnEvict(wsHandler.Evicted)

	engine := newEngine(cfg, engineDeps{
		tokens:   tokens,
		ws:       wsHandler,
		channels: handlers.NewChannelHandler(store, store, store, router, hub, nil),
		messages: handlers.NewMessageHandler(store, svc, nil, nil),
		contacts: handlers.NewContactsHandler(store, tracker),
		health:   map[string]handlers.Pinger{},
	})
	return &testApp{engine: engine, tokens: tokens, store: store}
}

func (a *testApp) call(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		tok, err := a.tokens.GenerateToken(userID, "")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func TestEngineServesHealthAndMetrics(t *testing.T) {
	app := newTestApp(t)

	rec := app.call(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.call(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "amici_")
}

func TestEngineRequiresAuthForAPI(t *testing.T) {
	app := newTestApp(t)

	rec := app.call(t, http.MethodGet, "/api/channel/get-user-channels", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEngineChannelFlow(t *testing.T) {
	app := newTestApp(t)
	alice := app.store.AddUser(models.User{Email: "alice@example.com"})
	bob := app.store.AddUser(models.User{Email: "bob@example.com"})

	rec := app.call(t, http.MethodPost, "/api/channel/create-channel", alice.ID, map[string]any{
		"name":    "general",
		"members": []string{bob.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Channel models.Channel `json:"channel"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = app.call(t, http.MethodPost, "/api/messages/send", bob.ID, map[string]any{
		"channel_id": created.Channel.ID,
		"content":    "hello",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = app.call(t, http.MethodGet, "/api/channel/get-channel-messages/"+created.Channel.ID, alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello")

	rec = app.call(t, http.MethodPost, "/api/channel/leave-channel/"+created.Channel.ID, alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ch, err := app.store.GetChannel(context.Background(), created.Channel.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, ch.AdminID)
}

func TestEngineDirectMessageToUnknownUser(t *testing.T) {
	app := newTestApp(t)
	alice := app.store.AddUser(models.User{Email: "alice@example.com"})

	rec := app.call(t, http.MethodPost, "/api/messages/send", alice.ID, map[string]any{
		"recipient_id": "00000000-0000-0000-0000-000000000000",
		"content":      "anyone?",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
