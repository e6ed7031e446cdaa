package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	surgerr "surgrag/pkg/errors"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOllamaBaseURL = "http://localhost:11434/v1"
)

// OpenAIEncoder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEncoder struct {
	apiKey    string
	model     string
	baseURL   string
	dimension int
	maxChars  int
	client    *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Usage embeddingUsage  `json:"usage"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// RemoteOptions configures a remote encoder.
type RemoteOptions struct {
	Model             string
	BaseURL           string
	APIKey            string
	Dimension         int
	MaxChars          int
	RequestsPerSecond float64 // 0 = unlimited
	Timeout           time.Duration
	Logger            *zap.Logger
}

// NewOpenAIEncoder reads the API key from apiKeyEnv and builds an encoder.
func NewOpenAIEncoder(apiKeyEnv string, opts RemoteOptions) (*OpenAIEncoder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, surgerr.New(surgerr.CodeEmbeddingConfigInvalid,
			"API key not found in environment variable: "+apiKeyEnv)
	}
	opts.APIKey = apiKey
	if opts.BaseURL == "" {
		opts.BaseURL = defaultOpenAIBaseURL
	}
	if opts.Dimension == 0 {
		opts.Dimension = openAIDimension(opts.Model)
	}
	return NewRemoteEncoder(opts)
}

// NewOllamaEncoder builds an encoder for Ollama's OpenAI-compatible endpoint.
func NewOllamaEncoder(opts RemoteOptions) (*OpenAIEncoder, error) {
	opts.APIKey = "ollama"
	if opts.BaseURL == "" {
		opts.BaseURL = defaultOllamaBaseURL
	}
	if opts.Dimension == 0 {
		opts.Dimension = ollamaDimension(opts.Model)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	return NewRemoteEncoder(opts)
}

// NewRemoteEncoder builds an encoder for any OpenAI-compatible endpoint.
func NewRemoteEncoder(opts RemoteOptions) (*OpenAIEncoder, error) {
	if opts.Model == "" {
		return nil, surgerr.New(surgerr.CodeEmbeddingConfigInvalid, "embedding model is required")
	}
	if opts.Dimension <= 0 {
		return nil, surgerr.New(surgerr.CodeEmbeddingConfigInvalid,
			fmt.Sprintf("dimension must be positive, got %d", opts.Dimension))
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &OpenAIEncoder{
		apiKey:    opts.APIKey,
		model:     opts.Model,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		dimension: opts.Dimension,
		maxChars:  opts.MaxChars,
		client:    &http.Client{Timeout: opts.Timeout},
		limiter:   rate.NewLimiter(limit, 1),
		logger:    opts.Logger.With(zap.String("model", opts.Model)),
	}, nil
}

func openAIDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	}
	return 1536
}

func ollamaDimension(model string) int {
	switch model {
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	}
	return 768
}

// Encode embeds one text with a single request.
func (e *OpenAIEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if e.maxChars > 0 {
		if n := utf8.RuneCountInString(text); n > e.maxChars {
			return nil, surgerr.New(surgerr.CodeEmbeddingEncodeFailure, "text exceeds encoder limit",
				surgerr.Field("chars", n), surgerr.Field("max_chars", e.maxChars))
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeEmbeddingEncodeFailure, "rate limiter wait")
	}

	vec, err := e.request(ctx, text)
	if err != nil {
		e.logger.Warn("embedding request failed", zap.Error(err))
		return nil, err
	}
	if len(vec) != e.dimension {
		return nil, surgerr.New(surgerr.CodeIndexDimensionMismatch,
			fmt.Sprintf("endpoint returned %d dimensions, configured %d", len(vec), e.dimension))
	}
	return vec, nil
}

func (e *OpenAIEncoder) request(ctx context.Context, text string) ([]float32, error) {
	reqBody := embeddingRequest{
		Input: []string{text},
		Model: e.model,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeEmbeddingEncodeFailure, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeEmbeddingEncodeFailure, "create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeEmbeddingEncodeFailure, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeEmbeddingEncodeFailure, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, surgerr.New(surgerr.CodeEmbeddingEncodeFailure,
			fmt.Sprintf("API returned status %d: %s", resp.StatusCode, preview(body)),
			surgerr.Field("status", resp.StatusCode))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, surgerr.Wrapf(err, surgerr.CodeEmbeddingEncodeFailure,
			"parse response (body: %s)", preview(body))
	}

	if embResp.Error != nil {
		return nil, surgerr.New(surgerr.CodeEmbeddingEncodeFailure, "API error: "+embResp.Error.Message)
	}

	for _, data := range embResp.Data {
		if data.Index == 0 {
			return data.Embedding, nil
		}
	}
	return nil, surgerr.New(surgerr.CodeEmbeddingEncodeFailure, "response carried no embedding")
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func (e *OpenAIEncoder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEncoder) ModelName() string {
	return e.model
}
