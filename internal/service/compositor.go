package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"comic-server/internal/config"
	"comic-server/internal/models"
)

// negativePrompt - фиксированный негативный промт композитора.
const negativePrompt = "low quality, distorted face, messy text"

// ImageCompositor собирает готовую панель из референсов персонажей, фона и
// текстовой инструкции. Возвращает ссылку на итоговое изображение.
type ImageCompositor interface {
	// ComposePanel отправляет один мультимодальный запрос: изображения
	// персонажей по порядку, затем фон, затем инструкция. Ошибка любого
	// уровня (транспорт, статус, формат ответа) оборачивает
	// ErrCompositionFailed и не ретраится.
	ComposePanel(ctx context.Context, characterImages []string, backgroundImage string, instruction string) (string, error)
}

// httpCompositor - реализация поверх multimodal-generation API.
type httpCompositor struct {
	logger   *zap.Logger
	client   *http.Client
	endpoint string
	apiKey   string
	model    string
}

// NewImageCompositor создает компонент композиции панелей.
func NewImageCompositor(cfg *config.Config, logger *zap.Logger) ImageCompositor {
	return &httpCompositor{
		logger: logger.Named("ImageCompositor"),
		client: &http.Client{
			Timeout: cfg.ImageEditTimeout,
		},
		endpoint: cfg.ImageEditBaseURL,
		apiKey:   cfg.ImageEditAPIKey,
		model:    cfg.ImageEditModel,
	}
}

// contentBlock - один блок мультимодального содержимого: либо image, либо text.
type contentBlock struct {
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type compositeMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type compositeRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []compositeMessage `json:"messages"`
	} `json:"input"`
	Parameters struct {
		NegativePrompt string `json:"negative_prompt"`
		Watermark      bool   `json:"watermark"`
	} `json:"parameters"`
}

type compositeResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []contentBlock `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (c *httpCompositor) ComposePanel(ctx context.Context, characterImages []string, backgroundImage string, instruction string) (string, error) {
	log := c.logger.With(zap.String("model", c.model), zap.Int("character_images", len(characterImages)))

	// Порядок блоков фиксирован: персонажи, фон, инструкция
	content := make([]contentBlock, 0, len(characterImages)+2)
	for _, img := range characterImages {
		content = append(content, contentBlock{Image: img})
	}
	content = append(content, contentBlock{Image: backgroundImage})
	content = append(content, contentBlock{Text: instruction})

	reqPayload := compositeRequest{Model: c.model}
	reqPayload.Input.Messages = []compositeMessage{{Role: "user", Content: content}}
	reqPayload.Parameters.NegativePrompt = negativePrompt
	reqPayload.Parameters.Watermark = false

	reqBodyBytes, err := json.Marshal(reqPayload)
	if err != nil {
		log.Error("Failed to marshal composite request payload", zap.Error(err))
		return "", fmt.Errorf("%w: failed to marshal request payload: %v", models.ErrCompositionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBodyBytes))
	if err != nil {
		log.Error("Failed to create composite request", zap.String("url", c.endpoint), zap.Error(err))
		return "", fmt.Errorf("%w: failed to create request: %v", models.ErrCompositionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	startTime := time.Now()
	log.Debug("Sending composite request", zap.String("url", c.endpoint))
	resp, err := c.client.Do(req)
	if err != nil {
		log.Error("Failed to execute composite request", zap.Error(err))
		return "", fmt.Errorf("%w: http request failed: %v", models.ErrCompositionFailed, err)
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Error("Composite API returned non-OK status",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response_body", bodyBytes),
		)
		return "", fmt.Errorf("%w: API returned status %d: %s", models.ErrCompositionFailed, resp.StatusCode, string(bodyBytes))
	}
	if readErr != nil {
		log.Error("Failed to read composite response body", zap.Error(readErr))
		return "", fmt.Errorf("%w: failed to read response body: %v", models.ErrCompositionFailed, readErr)
	}

	var apiResp compositeResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		log.Error("Failed to decode composite response", zap.Error(err))
		return "", fmt.Errorf("%w: failed to decode response: %v", models.ErrCompositionFailed, err)
	}

	if len(apiResp.Output.Choices) == 0 || len(apiResp.Output.Choices[0].Message.Content) == 0 {
		log.Error("Composite API returned no choices", zap.String("code", apiResp.Code), zap.String("message", apiResp.Message))
		return "", fmt.Errorf("%w: empty response (code=%s, message=%s)", models.ErrCompositionFailed, apiResp.Code, apiResp.Message)
	}

	imageRef := apiResp.Output.Choices[0].Message.Content[0].Image
	if imageRef == "" {
		log.Error("Composite API response has no image in first content block")
		return "", fmt.Errorf("%w: response is missing the output image", models.ErrCompositionFailed)
	}

	log.Info("Panel composed", zap.Duration("duration", time.Since(startTime)), zap.String("request_id", apiResp.RequestID))
	return imageRef, nil
}
