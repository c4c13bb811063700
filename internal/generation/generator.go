// Package generation invokes a generative model constrained to a response
// schema and returns its raw text output.
package generation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	apperrors "agri-pipeline/internal/common/errors"
	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/models"
	"agri-pipeline/internal/schema"
)

const DefaultModel = "gemini-2.0-flash"

// Generator produces raw model output for prompt. Implementations return
// *errors.PipelineError values from the invocation stage.
type Generator interface {
	Generate(ctx context.Context, prompt string, node *schema.Node, media *models.Media) (string, error)
}

type GeminiConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	Timeout         time.Duration
	Temperature     float64
	MaxOutputTokens int
	HTTPClient      *http.Client
}

// GeminiGenerator calls one Gemini model through the genai SDK.
type GeminiGenerator struct {
	config    GeminiConfig
	client    *genai.Client
	promptLog *PromptLog
	logger    logger.Logger
}

// NewGeminiGenerator builds a generator for cfg.Model. A missing API key is
// not an error here; Generate reports it per request.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig, promptLog *PromptLog, log logger.Logger) (*GeminiGenerator, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	g := &GeminiGenerator{
		config:    cfg,
		promptLog: promptLog,
		logger:    log.WithFields(map[string]interface{}{"model": cfg.Model}),
	}
	if cfg.APIKey == "" {
		return g, nil
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *GeminiGenerator) Model() string {
	return g.config.Model
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, node *schema.Node, media *models.Media) (string, error) {
	if g.client == nil {
		return "", apperrors.NewInvocationConfigError("generation api key is not set", nil)
	}

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if media != nil && len(media.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(media.Data, media.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, g.contentConfig(node))
	if err != nil {
		g.promptLog.Write(g.config.Model, prompt, media, "ERROR: "+err.Error())
		classified := classifyError(err)
		g.logger.Warn("generation failed", map[string]interface{}{
			"error":       err.Error(),
			"code":        string(classified.Code),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return "", classified
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		reason := string(resp.PromptFeedback.BlockReason)
		g.promptLog.Write(g.config.Model, prompt, media, "BLOCKED: "+reason)
		return "", apperrors.NewInvocationBackendError(fmt.Errorf("prompt blocked: %s", reason), true)
	}

	text := strings.TrimSpace(resp.Text())
	g.promptLog.Write(g.config.Model, prompt, media, text)
	if text == "" {
		return "", apperrors.NewInvocationBackendError(fmt.Errorf("model returned no content"), true)
	}

	g.logger.Debug("generation complete", map[string]interface{}{
		"duration_ms":    time.Since(start).Milliseconds(),
		"response_chars": len(text),
		"with_media":     media != nil,
	})
	return text, nil
}

func (g *GeminiGenerator) contentConfig(node *schema.Node) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if node != nil {
		cfg.ResponseSchema = schema.ToGenai(node)
	}
	if g.config.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(g.config.Temperature))
	}
	if g.config.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(g.config.MaxOutputTokens)
	}
	return cfg
}
