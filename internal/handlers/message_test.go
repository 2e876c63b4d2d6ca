package handlers

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"amici-chat/internal/messaging"
	"amici-chat/internal/mocks"
	"amici-chat/internal/models"
	"amici-chat/internal/repositories"
	"amici-chat/internal/storage"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "alice")
		c.Next()
	})
	r.POST("/messages/get-messages", handler.GetMessages)
	r.POST("/messages/send", handler.SendMessage)
	r.POST("/messages/upload-file", handler.UploadFile)
	return r
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetMessagesReturnsHistory(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(NewMessageHandler(messages, new(mocks.SenderMock), nil, nil))
	bob := "bob"

	messages.On("History", mock.Anything, "alice", "bob").
		Return([]models.Message{{ID: "m1", SenderID: "alice", RecipientID: &bob}}, nil).Once()

	rec := postJSON(router, "/messages/get-messages", `{"id":"bob"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"m1"`)
	messages.AssertExpectations(t)
}

func TestGetMessagesRequiresID(t *testing.T) {
	router := setupMessageRouter(NewMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.SenderMock), nil, nil))

	rec := postJSON(router, "/messages/get-messages", `{}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageDirect(t *testing.T) {
	sender := new(mocks.SenderMock)
	router := setupMessageRouter(NewMessageHandler(new(mocks.MessageRepositoryMock), sender, nil, nil))

	sender.On("SendDirect", mock.Anything, messaging.SendRequest{
		SenderID: "alice",
		TargetID: "bob",
		Payload:  models.Payload{Type: models.MessageTypeText, Content: "hi"},
	}).Return(models.Message{ID: "m1"}, nil).Once()

	rec := postJSON(router, "/messages/send", `{"recipient_id":"bob","message_type":"text","content":"hi"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	sender.AssertExpectations(t)
}

func TestSendMessageChannelForbidden(t *testing.T) {
	sender := new(mocks.SenderMock)
	router := setupMessageRouter(NewMessageHandler(new(mocks.MessageRepositoryMock), sender, nil, nil))

	sender.On("SendChannel", mock.Anything, mock.MatchedBy(func(req messaging.SendRequest) bool {
		return req.TargetID == "ch-1" && req.OriginConnID == ""
	})).Return(nil, repositories.ErrForbidden).Once()

	rec := postJSON(router, "/messages/send", `{"channel_id":"ch-1","content":"hi"}`)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSendMessageNeedsExactlyOneTarget(t *testing.T) {
	router := setupMessageRouter(NewMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.SenderMock), nil, nil))

	rec := postJSON(router, "/messages/send", `{"recipient_id":"bob","channel_id":"ch-1","content":"hi"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(router, "/messages/send", `{"content":"hi"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageValidationError(t *testing.T) {
	sender := new(mocks.SenderMock)
	router := setupMessageRouter(NewMessageHandler(new(mocks.MessageRepositoryMock), sender, nil, nil))

	sender.On("SendDirect", mock.Anything, mock.Anything).Return(nil, repositories.ErrValidation).Once()

	rec := postJSON(router, "/messages/send", `{"recipient_id":"bob"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartUpload(t *testing.T, field, name, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/messages/upload-file", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadFileSuccess(t *testing.T) {
	uploader := new(mocks.UploaderMock)
	router := setupMessageRouter(NewMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.SenderMock), uploader, nil))

	uploader.On("Upload", mock.Anything, "alice", "cat.png", mock.Anything, mock.Anything, int64(4)).
		Return("https://cdn.example/uploads/alice/x/cat.png", nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, "file", "cat.png", "meow"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://cdn.example/uploads/alice/x/cat.png")
	uploader.AssertExpectations(t)
}

func TestUploadFileMissingFile(t *testing.T) {
	router := setupMessageRouter(NewMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.SenderMock), new(mocks.UploaderMock), nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, "other", "cat.png", "meow"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "File is required.")
}

func TestUploadFileStorageFailure(t *testing.T) {
	uploader := new(mocks.UploaderMock)
	router := setupMessageRouter(NewMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.SenderMock), uploader, nil))

	uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("s3 down")).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, "file", "cat.png", "meow"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "s3 down")
}

func TestUploadFileDisabled(t *testing.T) {
	var uploader storage.Uploader
	router := setupMessageRouter(NewMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.SenderMock), uploader, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, "file", "cat.png", "meow"))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
