package narration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/basho/internal/config"
	"github.com/hyperjump/basho/internal/models"
)

const actionsPrefix = "ACTIONS:"

const systemPrompt = `You are the voice of a place search app. You receive a JSON summary of a search that has
already been computed. Write at most three short sentences for the user in the requested language.
Never invent places, counts, ratings, opening hours or actions. Do not list result ids.
Follow the response mode: NORMAL presents the results, RECOVERY explains the problem and offers
alternatives, CLARIFY asks the user to clarify their query or location.
On the last line write "` + actionsPrefix + `" followed by up to three chip ids from the summary,
comma separated, most useful first.`

// OpenAINarrator streams a chat completion built only from the AssistantContext.
type OpenAINarrator struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewOpenAINarrator creates a narrator for the OpenAI compatible API at cfg.BaseURL (or the default).
func NewOpenAINarrator(apiKey string, cfg config.NarrationConfig, logger *zap.Logger) *OpenAINarrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger.Info("initializing OpenAI narrator", zap.String("model", cfg.Model))
	return &OpenAINarrator{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
}

func (n *OpenAINarrator) Name() string { return "openai" }

type promptPayload struct {
	Mode     models.ResponseMode     `json:"responseMode"`
	Language string                  `json:"language"`
	Context  models.AssistantContext `json:"context"`
}

// Narrate streams the completion. The trailing actions line is parsed, not emitted.
func (n *OpenAINarrator) Narrate(ctx context.Context, req Request, out chan<- string) (Result, error) {
	payload, err := json.Marshal(promptPayload{
		Mode:     req.Mode,
		Language: NormalizeLanguage(req.Context.Language),
		Context:  req.Context,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal prompt: %w", err)
	}

	stream, err := n.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:               n.model,
		MaxCompletionTokens: n.maxTokens,
		Stream:              true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("OpenAI stream failed: %w", err)
	}
	defer stream.Close()

	lines := &lineFilter{}
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("OpenAI stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		for _, s := range lines.push(resp.Choices[0].Delta.Content) {
			if err := emit(ctx, out, s); err != nil {
				return Result{}, err
			}
		}
	}
	if s := lines.flush(); s != "" {
		if err := emit(ctx, out, s); err != nil {
			return Result{}, err
		}
	}

	if len(lines.actions) == 0 {
		n.logger.Debug("narration named no actions, using defaults")
		return defaultActions(req.Context), nil
	}
	r := Result{PrimaryActionID: lines.actions[0]}
	if len(lines.actions) > 1 {
		r.SecondaryActionIDs = lines.actions[1:]
	}
	return r, nil
}

// lineFilter passes text through as soon as it is known not to belong to the actions line.
// The start of each line is held back until it can no longer become the actions line.
type lineFilter struct {
	pending strings.Builder
	midLine bool
	actions []string
}

func (f *lineFilter) push(s string) []string {
	var out []string
	for s != "" {
		chunk, rest, complete := s, "", false
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			chunk, rest, complete = s[:i+1], s[i+1:], true
		}
		s = rest

		if f.midLine {
			out = append(out, chunk)
			f.midLine = !complete
			continue
		}
		f.pending.WriteString(chunk)
		if complete {
			if line := f.line(); line != "" {
				out = append(out, line)
			}
			continue
		}
		if partial := f.pending.String(); !couldBeActions(partial) {
			out = append(out, partial)
			f.pending.Reset()
			f.midLine = true
		}
	}
	return out
}

// line consumes the pending line and returns the text to emit, if any.
func (f *lineFilter) line() string {
	line := f.pending.String()
	f.pending.Reset()
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(strings.ToUpper(trimmed), actionsPrefix) {
		f.parseActions(trimmed[len(actionsPrefix):])
		return ""
	}
	return line
}

func (f *lineFilter) flush() string {
	if f.pending.Len() == 0 {
		return ""
	}
	return strings.TrimRight(f.line(), "\n")
}

func (f *lineFilter) parseActions(s string) {
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			f.actions = append(f.actions, id)
		}
	}
}

// couldBeActions reports whether a partial line may still turn into the actions line.
func couldBeActions(partial string) bool {
	t := strings.ToUpper(strings.TrimLeft(partial, " \t"))
	if len(t) < len(actionsPrefix) {
		return strings.HasPrefix(actionsPrefix, t)
	}
	return strings.HasPrefix(t, actionsPrefix)
}
