package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
)

// NewScriptWriter selects the script writer named in config
func NewScriptWriter(config *domain.ScriptConfig, log *zap.Logger) (domain.ScriptWriter, error) {
	switch config.Provider {
	case "", "template":
		return &TemplateScriptWriter{}, nil
	case "chat":
		if config.APIKey == "" {
			return nil, fmt.Errorf("script.api_key is required for the chat provider")
		}
		return NewChatScriptWriter(config, log), nil
	default:
		return nil, fmt.Errorf("unknown script provider: %s", config.Provider)
	}
}

// TemplateScriptWriter builds a script from the topic alone. It needs no
// network access and always returns the same script for the same topic.
type TemplateScriptWriter struct{}

// WriteScript implements domain.ScriptWriter
func (w *TemplateScriptWriter) WriteScript(ctx context.Context, topic string) (*domain.Script, error) {
	topic = strings.Join(strings.Fields(topic), " ")
	if topic == "" {
		return nil, domain.NewConfigurationError("topic is empty")
	}

	runes := []rune(topic)
	title := strings.ToUpper(string(runes[0])) + string(runes[1:])
	text := fmt.Sprintf(
		"Here is something you might not know about %s. "+
			"Take a closer look at %s and you will see details most people miss. "+
			"Follow for more short stories about %s.",
		topic, topic, topic)

	words := strings.Fields(strings.ToLower(topic))
	queries := []string{strings.ToLower(topic)}
	if len(words) > 1 {
		queries = append(queries, words[len(words)-1], words[0])
	}

	return &domain.Script{
		Title:       title,
		Description: fmt.Sprintf("A short video about %s. #shorts #%s", topic, strings.Join(words, "")),
		Text:        text,
		Queries:     lo.Uniq(queries),
	}, nil
}

// ChatScriptWriter asks an OpenAI compatible chat completions endpoint for
// a script and expects a JSON object in the reply.
type ChatScriptWriter struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewChatScriptWriter creates a chat backed script writer
func NewChatScriptWriter(config *domain.ScriptConfig, log *zap.Logger) *ChatScriptWriter {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatScriptWriter{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		model:   config.Model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.OrNop(log),
	}
}

const scriptPrompt = `You write narration for vertical short videos of about 30 seconds.
Reply with a JSON object only, with these fields:
"title" (under 60 characters), "description" (one sentence with hashtags),
"script" (60 to 90 words of spoken narration, no stage directions),
"search_terms" (3 to 5 short English phrases describing stock footage to show).`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
	Temperature    float64           `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type scriptReply struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Script      string   `json:"script"`
	SearchTerms []string `json:"search_terms"`
}

// WriteScript implements domain.ScriptWriter
func (w *ChatScriptWriter) WriteScript(ctx context.Context, topic string) (*domain.Script, error) {
	body, err := json.Marshal(chatRequest{
		Model: w.model,
		Messages: []chatMessage{
			{Role: "system", Content: scriptPrompt},
			{Role: "user", Content: "Topic: " + topic},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", "application/json")

	w.logger.Info("Requesting script", zap.String("topic", topic), zap.String("model", w.model))

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("script request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("script request failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("failed to decode script response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("script response has no choices")
	}

	var reply scriptReply
	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse script reply: %w", err)
	}

	queries := lo.Uniq(lo.FilterMap(reply.SearchTerms, func(q string, _ int) (string, bool) {
		q = strings.TrimSpace(q)
		return q, q != ""
	}))
	if reply.Script == "" || len(queries) == 0 {
		return nil, fmt.Errorf("script reply is missing script text or search terms")
	}

	return &domain.Script{
		Title:       reply.Title,
		Description: reply.Description,
		Text:        reply.Script,
		Queries:     queries,
	}, nil
}
