package advisory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostelx-api/internal/models"
	"github.com/noah-isme/hostelx-api/pkg/config"
)

func TestParseResponseSanitises(t *testing.T) {
	got, err := parseResponse("Sure!\n{\"category\":\"  Plumbing \",\"priority\":\"high\",\"analysis\":\"Leak in B block.\"}\nThanks")
	require.NoError(t, err)
	assert.Equal(t, "Plumbing", got.Category)
	assert.Equal(t, models.PriorityHigh, got.Priority)
	assert.Equal(t, "Leak in B block.", got.Note)
}

func TestParseResponseDefaults(t *testing.T) {
	got, err := parseResponse(`{"category":"","priority":"urgent!!","analysis":"` + strings.Repeat("x", 900) + `"}`)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultCategory, got.Category)
	assert.Equal(t, models.PriorityMedium, got.Priority)
	assert.Len(t, got.Note, maxNoteLen)
}

func TestParseResponseRejectsGarbage(t *testing.T) {
	_, err := parseResponse("no json here")
	assert.ErrorIs(t, err, ErrEmptyResponse)
	_, err = parseResponse("{not json}")
	assert.Error(t, err)
}

func TestNewFallsBackToNoop(t *testing.T) {
	hook := New(config.AdvisoryConfig{Enabled: true}, nil)
	_, ok := hook.(Noop)
	assert.True(t, ok)

	got, err := hook.Analyze(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultAdvisory(), got)
}

func TestClaudeAnalyzeAgainstStubServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "msg_1",
			"type":  "message",
			"role":  "assistant",
			"model": "test-model",
			"content": []map[string]string{
				{"type": "text", "text": `{"category":"Electrical","priority":"LOW","analysis":"Fan is noisy."}`},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 12},
		})
	}))
	defer srv.Close()

	hook := NewClaude(config.AdvisoryConfig{APIKey: "test", BaseURL: srv.URL, Model: "test-model"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := hook.Analyze(ctx, "The ceiling fan makes noise")
	require.NoError(t, err)
	assert.Equal(t, "Electrical", got.Category)
	assert.Equal(t, models.PriorityLow, got.Priority)
}

func TestClaudeAnalyzeSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	hook := NewClaude(config.AdvisoryConfig{APIKey: "test", BaseURL: srv.URL, Model: "test-model"}, nil)
	_, err := hook.Analyze(context.Background(), "text")
	assert.Error(t, err)
}
