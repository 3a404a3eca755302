package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openaigo "github.com/sashabaranov/go-openai"

	"comic-server/internal/config"
	"comic-server/internal/models"
	"comic-server/internal/schemas"
)

var (
	describerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comic_server_describer_requests_total",
			Help: "Total number of requests to the scene description model.",
		},
		[]string{"model", "status"},
	)
	describerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comic_server_describer_request_duration_seconds",
			Help:    "Histogram of scene description request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
	describerPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comic_server_describer_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(250, 250, 20),
		},
		[]string{"model"},
	)
	describerCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comic_server_describer_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(100, 100, 20),
		},
		[]string{"model"},
	)
)

// UsageInfo содержит информацию об использовании токенов модели описания.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// SceneDescriber строит структурированное описание сцены для одной реплики
// диалога. Реализации возвращают ErrDescriptionFailed при ошибке модели или
// неполном ответе.
type SceneDescriber interface {
	DescribeScene(ctx context.Context, userID string, contextText string, dialogue []string, targetLine string) (*models.SceneDescription, UsageInfo, error)
}

// describerSystemPrompt - общий системный промт для обеих реализаций.
const describerSystemPrompt = `You are an expert visual storyteller and image prompt generator. Your task is to take a piece of dialogue and its context, and produce a highly detailed, cinematic description of a single comic panel suitable for a text-to-image AI. Focus on the moment the target line is delivered. The main focus should be the speaking character, but include other relevant characters if their presence enhances the visual storytelling. Depict the atmosphere, lighting, and emotional tone naturally. Occasionally (about 40% of the time), widen the scene to include both the speaker and other characters. Respond with JSON only.`

// buildDescriberInput собирает пользовательскую часть промта описания.
// Модель видит весь диалог, но описывает только целевую реплику; сама
// реплика вставляется дословно в кавычках.
func buildDescriberInput(contextText string, dialogue []string, targetLine string) string {
	var sb strings.Builder
	if strings.TrimSpace(contextText) != "" {
		sb.WriteString("Scene context:\n")
		sb.WriteString(contextText)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Full dialogue:\n")
	for _, line := range dialogue {
		sb.WriteString("- ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\nTarget line to depict:\n")
	sb.WriteString("\"")
	sb.WriteString(targetLine)
	sb.WriteString("\"\n\n")
	sb.WriteString("Analyze the target line and the full situation. Describe the moment the line is delivered, including the speaker and any other characters visible or reacting in the same frame. Capture emotional tension, lighting, and the spatial relationship between characters.")
	return sb.String()
}

// estimatePromptTokens оценивает размер промта токенизатором tiktoken.
// Оценка нужна только для метрик, точность cl100k_base достаточна.
func estimatePromptTokens(model, systemPrompt, userInput string) int {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0
		}
	}
	return len(tke.Encode(systemPrompt, nil, nil)) + len(tke.Encode(userInput, nil, nil))
}

// --- OpenAI Implementation ---

// openAIDescriber реализует SceneDescriber с использованием go-openai.
// Structured output по JSON Schema не дает модели опустить поля описания.
type openAIDescriber struct {
	client *openaigo.Client
	model  string
}

func (d *openAIDescriber) DescribeScene(ctx context.Context, userID string, contextText string, dialogue []string, targetLine string) (*models.SceneDescription, UsageInfo, error) {
	usageInfo := UsageInfo{}
	userInput := buildDescriberInput(contextText, dialogue, targetLine)

	startTime := time.Now()
	log.Printf("Отправка запроса описания сцены: Model=%s, Input=%d bytes, UserID: %s", d.model, len(userInput), userID)

	resp, err := d.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model: d.model,
		Messages: []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleSystem, Content: describerSystemPrompt},
			{Role: openaigo.ChatMessageRoleUser, Content: userInput},
		},
		ResponseFormat: &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openaigo.ChatCompletionResponseFormatJSONSchema{
				Name:   "scene_description",
				Schema: schemas.SceneDescriptionSchema,
				Strict: true,
			},
		},
	})
	duration := time.Since(startTime)

	if err != nil {
		log.Printf("Ошибка от модели описания за %v (userID: %s): %v", duration, userID, err)
		describerRequestsTotal.With(prometheus.Labels{"model": d.model, "status": "error"}).Inc()
		return nil, usageInfo, fmt.Errorf("%w: %v", models.ErrDescriptionFailed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		log.Printf("Модель описания вернула пустой ответ за %v (userID: %s)", duration, userID)
		describerRequestsTotal.With(prometheus.Labels{"model": d.model, "status": "error_empty_response"}).Inc()
		return nil, usageInfo, fmt.Errorf("%w: получен пустой ответ", models.ErrDescriptionFailed)
	}

	desc, err := schemas.ParseSceneDescription([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		describerRequestsTotal.With(prometheus.Labels{"model": d.model, "status": "error_invalid_schema"}).Inc()
		return nil, usageInfo, err
	}

	describerRequestsTotal.With(prometheus.Labels{"model": d.model, "status": "success"}).Inc()
	describerRequestDuration.With(prometheus.Labels{"model": d.model}).Observe(duration.Seconds())

	if resp.Usage.TotalTokens > 0 {
		usageInfo.PromptTokens = resp.Usage.PromptTokens
		usageInfo.CompletionTokens = resp.Usage.CompletionTokens
		usageInfo.TotalTokens = resp.Usage.TotalTokens
	} else {
		// Некоторые провайдеры не возвращают usage, оцениваем сами
		usageInfo.PromptTokens = estimatePromptTokens(d.model, describerSystemPrompt, userInput)
		usageInfo.TotalTokens = usageInfo.PromptTokens
	}
	describerPromptTokens.With(prometheus.Labels{"model": d.model}).Observe(float64(usageInfo.PromptTokens))
	describerCompletionTokens.With(prometheus.Labels{"model": d.model}).Observe(float64(usageInfo.CompletionTokens))

	log.Printf("Описание сцены получено за %v (userID: %s, tokens: %d)", duration, userID, usageInfo.TotalTokens)
	return desc, usageInfo, nil
}

// --- Ollama Implementation ---

// ollamaDescriber реализует SceneDescriber с использованием ollama/api
type ollamaDescriber struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

func newOllamaDescriber(cfg *config.Config) (SceneDescriber, error) {
	httpClient := &http.Client{
		Timeout: cfg.AITimeout,
	}

	// api.NewClient требует URL без суффикса /v1
	ollamaBaseURL := strings.TrimSuffix(cfg.AIBaseURL, "/v1")
	ollamaBaseURL = strings.TrimSuffix(ollamaBaseURL, "/")

	parsedURL, err := url.Parse(ollamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", ollamaBaseURL, err)
	}

	client := api.NewClient(parsedURL, httpClient)
	log.Printf("Ollama Клиент создан. Используемый BaseURL: %s, Model: %s, Timeout: %v", ollamaBaseURL, cfg.AIModel, cfg.AITimeout)

	return &ollamaDescriber{
		client:  client,
		model:   cfg.AIModel,
		timeout: cfg.AITimeout,
	}, nil
}

func (d *ollamaDescriber) DescribeScene(ctx context.Context, userID string, contextText string, dialogue []string, targetLine string) (*models.SceneDescription, UsageInfo, error) {
	usageInfo := UsageInfo{}
	userInput := buildDescriberInput(contextText, dialogue, targetLine)

	req := &api.ChatRequest{
		Model: d.model,
		Messages: []api.Message{
			{Role: "system", Content: describerSystemPrompt},
			{Role: "user", Content: userInput},
		},
		Stream: func(b bool) *bool { return &b }(false),
		Format: json.RawMessage(schemas.SceneDescriptionSchema),
	}

	requestCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	startTime := time.Now()
	log.Printf("Отправка запроса описания сцены к Ollama: Model=%s, Input=%d bytes, UserID: %s", d.model, len(userInput), userID)

	var resp api.ChatResponse
	err := d.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r // Сохраняем последний (полный) ответ
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		log.Printf("Ошибка от Ollama API за %v (userID: %s): %v", duration, userID, err)
		describerRequestsTotal.With(prometheus.Labels{"model": d.model, "status": "error"}).Inc()
		return nil, usageInfo, fmt.Errorf("%w: %v", models.ErrDescriptionFailed, err)
	}
	if resp.Message.Content == "" {
		log.Printf("Ollama API вернул пустой ответ за %v (userID: %s)", duration, userID)
		describerRequestsTotal.With(prometheus.Labels{"model": d.model, "status": "error_empty_response"}).Inc()
		return nil, usageInfo, fmt.Errorf("%w: получен пустой ответ", models.ErrDescriptionFailed)
	}

	desc, err := schemas.ParseSceneDescription([]byte(resp.Message.Content))
	if err != nil {
		describerRequestsTotal.With(prometheus.Labels{"model": d.model, "status": "error_invalid_schema"}).Inc()
		return nil, usageInfo, err
	}

	describerRequestsTotal.With(prometheus.Labels{"model": d.model, "status": "success"}).Inc()
	describerRequestDuration.With(prometheus.Labels{"model": d.model}).Observe(duration.Seconds())

	usageInfo.PromptTokens = resp.PromptEvalCount
	usageInfo.CompletionTokens = resp.EvalCount
	usageInfo.TotalTokens = resp.PromptEvalCount + resp.EvalCount
	if usageInfo.TotalTokens > 0 {
		describerPromptTokens.With(prometheus.Labels{"model": d.model}).Observe(float64(usageInfo.PromptTokens))
		describerCompletionTokens.With(prometheus.Labels{"model": d.model}).Observe(float64(usageInfo.CompletionTokens))
	}

	log.Printf("Описание сцены от Ollama получено за %v (userID: %s, tokens: %d)", duration, userID, usageInfo.TotalTokens)
	return desc, usageInfo, nil
}

// --- Factory Function ---

// NewSceneDescriber создает реализацию SceneDescriber в зависимости от конфигурации
func NewSceneDescriber(cfg *config.Config) (SceneDescriber, error) {
	switch strings.ToLower(cfg.AIClientType) {
	case "openai":
		log.Printf("Используется реализация описания сцен: OpenAI")
		openaiConfig := openaigo.DefaultConfig(cfg.AIAPIKey)
		openaiConfig.BaseURL = cfg.AIBaseURL
		openaiConfig.HTTPClient = &http.Client{
			Timeout: cfg.AITimeout,
		}
		client := openaigo.NewClientWithConfig(openaiConfig)
		log.Printf("OpenAI Клиент создан. Используемый BaseURL: %s, Model: %s, Timeout: %v", cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout)
		return &openAIDescriber{
			client: client,
			model:  cfg.AIModel,
		}, nil
	case "ollama":
		log.Printf("Используется реализация описания сцен: Ollama")
		return newOllamaDescriber(cfg)
	default:
		return nil, fmt.Errorf("неизвестный тип AI клиента: '%s'", cfg.AIClientType)
	}
}
