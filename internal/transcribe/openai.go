package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chaz8081/gostt-scribe/internal/config"
)

// OpenAIProvider implements Provider using the OpenAI audio transcription API.
// The API accepts WAV, MP3, OGG and friends directly, so no local decoding is done.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	language  string
	translate bool
	logger    *slog.Logger
}

// NewOpenAIProvider creates a hosted transcription provider. The API key comes
// from cfg.OpenAI.APIKey, falling back to OPENAI_API_KEY.
func NewOpenAIProvider(cfg config.TranscribeConfig, logger *slog.Logger) (*OpenAIProvider, error) {
	apiKey := cfg.OpenAI.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("transcribe: openai API key not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.OpenAI.BaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAI.BaseURL
	}

	model := cfg.OpenAI.Model
	if model == "" {
		model = openai.Whisper1
	}

	logger.Debug("openai provider initialized", "model", model, "base_url", clientCfg.BaseURL)

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		language:  cfg.Language,
		translate: cfg.Translate,
		logger:    logger,
	}, nil
}

// Name returns the provider name.
func (o *OpenAIProvider) Name() string {
	return "openai"
}

// Close releases any resources (none for the HTTP client).
func (o *OpenAIProvider) Close() error {
	return nil
}

// Transcribe uploads the audio file and returns the recognized text.
func (o *OpenAIProvider) Transcribe(filePath string) (string, error) {
	if _, err := os.Stat(filePath); err != nil {
		return "", fmt.Errorf("transcribe: open audio file: %w", err)
	}

	req := openai.AudioRequest{
		Model:    o.model,
		FilePath: filePath,
	}
	if o.language != "" && o.language != "auto" {
		req.Language = o.language
	}

	o.logger.Debug("sending audio to openai", "file", filePath, "model", o.model, "translate", o.translate)

	var (
		resp openai.AudioResponse
		err  error
	)
	if o.translate {
		resp, err = o.client.CreateTranslation(context.Background(), req)
	} else {
		resp, err = o.client.CreateTranscription(context.Background(), req)
	}
	if err != nil {
		return "", fmt.Errorf("transcribe: openai request: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}
