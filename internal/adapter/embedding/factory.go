package embedding

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"surgrag/config"
	"surgrag/internal/port"
	surgerr "surgrag/pkg/errors"
)

// DefaultHashingDimension is the hashing encoder width when none is configured.
const DefaultHashingDimension = 384

// New builds the encoder named by cfg.Provider. A zero cfg.Dimension selects
// the provider's default width for cfg.Model.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (port.Encoder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := RemoteOptions{
		Model:             cfg.Model,
		BaseURL:           cfg.BaseURL,
		Dimension:         cfg.Dimension,
		MaxChars:          cfg.MaxChars,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Timeout:           time.Duration(cfg.TimeoutSecs) * time.Second,
		Logger:            logger,
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "hashing":
		dim := cfg.Dimension
		if dim == 0 {
			dim = DefaultHashingDimension
		}
		return NewHashingEncoder(dim, cfg.MaxChars)
	case "openai":
		return NewOpenAIEncoder(cfg.APIKeyEnv, opts)
	case "ollama":
		return NewOllamaEncoder(opts)
	}
	return nil, surgerr.New(surgerr.CodeEmbeddingConfigInvalid, "unknown embedding provider: "+cfg.Provider,
		surgerr.Field("provider", cfg.Provider))
}
