package service_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"comic-server/internal/config"
	"comic-server/internal/models"
	"comic-server/internal/service"
)

func newCompositor(serverURL string) service.ImageCompositor {
	cfg := &config.Config{
		ImageEditBaseURL: serverURL,
		ImageEditModel:   "qwen-image-edit",
		ImageEditAPIKey:  "test-api-key",
		ImageEditTimeout: 5 * time.Second,
	}
	return service.NewImageCompositor(cfg, zap.NewNop())
}

func TestImageCompositor_ComposePanel_Success(t *testing.T) {
	var capturedBody map[string]any
	var capturedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&capturedBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"output": {
				"choices": [
					{"message": {"content": [{"image": "https://cdn.example.com/panel-1.png"}]}}
				]
			},
			"request_id": "req-123"
		}`))
	}))
	defer server.Close()

	compositor := newCompositor(server.URL)
	imageRef, err := compositor.ComposePanel(context.Background(),
		[]string{"data:image/png;base64,AAA", "data:image/png;base64,BBB"},
		"data:image/jpeg;base64,CCC",
		"Render the panel",
	)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/panel-1.png", imageRef)
	assert.Equal(t, "Bearer test-api-key", capturedAuth)

	// Структура запроса: model, input.messages с блоками контента, parameters
	assert.Equal(t, "qwen-image-edit", capturedBody["model"])

	input := capturedBody["input"].(map[string]any)
	messages := input["messages"].([]any)
	require.Len(t, messages, 1)
	message := messages[0].(map[string]any)
	assert.Equal(t, "user", message["role"])

	// Порядок блоков: два персонажа, фон, затем текст инструкции
	content := message["content"].([]any)
	require.Len(t, content, 4)
	assert.Equal(t, "data:image/png;base64,AAA", content[0].(map[string]any)["image"])
	assert.Equal(t, "data:image/png;base64,BBB", content[1].(map[string]any)["image"])
	assert.Equal(t, "data:image/jpeg;base64,CCC", content[2].(map[string]any)["image"])
	assert.Equal(t, "Render the panel", content[3].(map[string]any)["text"])

	params := capturedBody["parameters"].(map[string]any)
	assert.Equal(t, "low quality, distorted face, messy text", params["negative_prompt"])
	assert.Equal(t, false, params["watermark"])
}

func TestImageCompositor_ComposePanel_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":"Throttling","message":"Requests throttled"}`))
	}))
	defer server.Close()

	compositor := newCompositor(server.URL)
	_, err := compositor.ComposePanel(context.Background(), []string{"img"}, "bg", "instruction")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCompositionFailed)
	assert.Contains(t, err.Error(), "429")
}

func TestImageCompositor_ComposePanel_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":{"choices":[]},"code":"","message":""}`))
	}))
	defer server.Close()

	compositor := newCompositor(server.URL)
	_, err := compositor.ComposePanel(context.Background(), []string{"img"}, "bg", "instruction")
	assert.ErrorIs(t, err, models.ErrCompositionFailed)
}

func TestImageCompositor_ComposePanel_MissingImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":{"choices":[{"message":{"content":[{"text":"no image here"}]}}]}}`))
	}))
	defer server.Close()

	compositor := newCompositor(server.URL)
	_, err := compositor.ComposePanel(context.Background(), []string{"img"}, "bg", "instruction")
	assert.ErrorIs(t, err, models.ErrCompositionFailed)
}

func TestImageCompositor_ComposePanel_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer server.Close()

	compositor := newCompositor(server.URL)
	_, err := compositor.ComposePanel(context.Background(), []string{"img"}, "bg", "instruction")
	assert.ErrorIs(t, err, models.ErrCompositionFailed)
}
