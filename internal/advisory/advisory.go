// Package advisory triages complaint text into a category, priority and short
// note. Results are suggestions only and are sanitised before use.
package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/noah-isme/hostelx-api/internal/models"
	"github.com/noah-isme/hostelx-api/pkg/config"
)

const (
	maxCategoryLen = 48
	maxNoteLen     = 600
)

// ErrEmptyResponse is returned when the model produced no usable content.
var ErrEmptyResponse = errors.New("advisory: empty response")

// Hook analyses complaint text.
type Hook interface {
	Analyze(ctx context.Context, text string) (models.Advisory, error)
}

// Noop returns the default advisory without calling out.
type Noop struct{}

// Analyze implements Hook.
func (Noop) Analyze(context.Context, string) (models.Advisory, error) {
	return models.DefaultAdvisory(), nil
}

// Claude calls the Anthropic Messages API.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
}

// NewClaude builds a client from cfg. SDK-level retries are disabled since the
// caller bounds the whole call with a short timeout.
func NewClaude(cfg config.AdvisoryConfig, logger *zap.Logger) *Claude {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Claude{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// New picks the Claude hook when enabled and configured, otherwise Noop.
func New(cfg config.AdvisoryConfig, logger *zap.Logger) Hook {
	if !cfg.Enabled || cfg.APIKey == "" {
		return Noop{}
	}
	return NewClaude(cfg, logger)
}

// Analyze implements Hook.
func (c *Claude) Analyze(ctx context.Context, text string) (models.Advisory, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(text))),
		},
	})
	if err != nil {
		return models.Advisory{}, fmt.Errorf("advisory call: %w", err)
	}
	if len(msg.Content) == 0 {
		return models.Advisory{}, ErrEmptyResponse
	}
	return parseResponse(msg.Content[0].Text)
}

func buildPrompt(text string) string {
	return fmt.Sprintf(`You triage complaints for a student hostel maintenance desk.

Complaint:
"""
%s
"""

Reply with ONLY a JSON object of the form
{"category": "<one or two words, e.g. Plumbing, Electrical, Mess, Cleaning, Security>", "priority": "<LOW|MEDIUM|HIGH>", "analysis": "<two sentences for the warden>"}`, text)
}

type rawAdvisory struct {
	Category string `json:"category"`
	Priority string `json:"priority"`
	Analysis string `json:"analysis"`
}

// parseResponse extracts and sanitises the JSON object in text.
func parseResponse(text string) (models.Advisory, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return models.Advisory{}, ErrEmptyResponse
	}
	var raw rawAdvisory
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return models.Advisory{}, fmt.Errorf("decode advisory: %w", err)
	}

	out := models.Advisory{
		Category: clip(strings.TrimSpace(raw.Category), maxCategoryLen),
		Priority: models.ParsePriority(raw.Priority),
		Note:     clip(strings.TrimSpace(raw.Analysis), maxNoteLen),
	}
	if out.Category == "" {
		out.Category = models.DefaultCategory
	}
	return out, nil
}

func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
