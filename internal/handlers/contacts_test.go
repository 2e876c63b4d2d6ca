package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"amici-chat/internal/logging"
	"amici-chat/internal/mocks"
	"amici-chat/internal/models"
	"amici-chat/internal/telemetry"
)

func setupContactsRouter(handler *ContactsHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "alice")
		c.Next()
	})
	r.GET("/contacts/get-contacts-for-dm", handler.GetContactsForDM)
	r.GET("/contacts/presence", handler.Presence)
	return r
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGetContactsForDM(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	router := setupContactsRouter(NewContactsHandler(messages, new(mocks.PresenceMock)))

	messages.On("ListDirectContacts", mock.Anything, "alice").Return([]models.DirectContact{
		{User: models.User{ID: "bob"}, LastMessageAt: time.Now()},
	}, nil).Once()

	rec := get(router, "/contacts/get-contacts-for-dm")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bob"`)
}

func TestPresenceLookup(t *testing.T) {
	tracker := new(mocks.PresenceMock)
	router := setupContactsRouter(NewContactsHandler(new(mocks.MessageRepositoryMock), tracker))

	tracker.On("Statuses", mock.Anything, []string{"bob", "carol"}).
		Return(map[string]bool{"bob": true, "carol": false}, nil).Once()

	rec := get(router, "/contacts/presence?ids=bob,%20carol,")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"presence":{"bob":true,"carol":false}}`, rec.Body.String())
}

func TestPresenceRequiresIDs(t *testing.T) {
	router := setupContactsRouter(NewContactsHandler(new(mocks.MessageRepositoryMock), new(mocks.PresenceMock)))

	rec := get(router, "/contacts/presence")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthReportsDegradedDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterHealthRoute(r, map[string]Pinger{"db": pinger{}, "redis": pinger{err: errors.New("refused")}})

	rec := get(r, "/healthz")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"db":"ok","redis":"refused"}}`, rec.Body.String())
}

func TestDebugRoutesPublishAudit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.test", "amici-chat", "test", logging.Discard())
	publisher.On("Publish", mock.Anything, "audit.test", mock.Anything, mock.Anything).Return(nil).Once()

	r := gin.New()
	RegisterDebugRoutes(r, emitter, true)

	rec := get(r, "/debug/audit-test")

	require.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)
}

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, false)

	rec := get(r, "/debug/audit-test")

	require.Equal(t, http.StatusNotFound, rec.Code)
}
