package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/dental-appointment-assistant/internal/tools"
	"github.com/hackgods/dental-appointment-assistant/pkg/logging"
)

var tracer = otel.Tracer("dental.internal.assistant")

var (
	ErrNoMessages  = errors.New("no usable chat messages")
	ErrNoChoices   = errors.New("completion returned no choices")
	ErrUnavailable = errors.New("chat assistant is not configured")
)

const (
	defaultModel     = "gpt-4o"
	defaultMaxRounds = 5
	defaultTimeout   = 30 * time.Second

	msgRoundsExhausted = "Sorry, I wasn't able to finish that request. Could you please try again?"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ToolExecutor runs one tool call and returns its JSON result.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args []byte) (string, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries either only the new turns or the whole visible history.
// With a ConversationID, turns already stored for that conversation are
// dropped when the request repeats them as a prefix.
type ChatRequest struct {
	ConversationID string    `json:"conversation_id,omitempty"`
	Messages       []Message `json:"messages"`
}

type ChatResponse struct {
	ConversationID string    `json:"conversation_id"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
}

type Options struct {
	Model         string
	MaxToolRounds int
	Timeout       time.Duration
	HistoryTTL    time.Duration
	Location      *time.Location
}

// Assistant answers patient chat messages, calling scheduling tools as the
// model requests them.
type Assistant struct {
	client    chatClient
	tools     ToolExecutor
	history   *historyStore
	model     string
	maxRounds int
	timeout   time.Duration
	loc       *time.Location
	now       func() time.Time
	logger    *logging.Logger
}

// New builds an Assistant. A nil redis client keeps conversations stateless:
// the caller then sends the whole transcript on every request.
func New(client chatClient, executor ToolExecutor, redisClient *redis.Client, opts Options, logger *logging.Logger) *Assistant {
	if client == nil {
		panic("assistant: chat client cannot be nil")
	}
	if executor == nil {
		panic("assistant: tool executor cannot be nil")
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = defaultMaxRounds
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}

	a := &Assistant{
		client:    client,
		tools:     executor,
		model:     opts.Model,
		maxRounds: opts.MaxToolRounds,
		timeout:   opts.Timeout,
		loc:       opts.Location,
		now:       time.Now,
		logger:    logger.With("component", "assistant"),
	}
	if redisClient != nil {
		a.history = newHistoryStore(redisClient, opts.HistoryTTL, tracer)
	}
	return a
}

// Reply appends the request's new messages to the stored transcript, runs the
// completion and tool loop, and persists the result.
func (a *Assistant) Reply(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "assistant.reply")
	defer span.End()
	span.SetAttributes(attribute.String("dental.conversation_id", conversationID))

	incoming := filterMessages(req.Messages)
	if len(incoming) == 0 {
		return nil, ErrNoMessages
	}

	var transcript []openai.ChatCompletionMessage
	if a.history != nil {
		stored, err := a.history.Load(ctx, conversationID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		transcript = stored
		incoming = unseenMessages(stored, incoming)
		if len(incoming) == 0 {
			return nil, ErrNoMessages
		}
	}
	transcript = append(transcript, incoming...)

	reply, transcript, err := a.complete(ctx, transcript)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if a.history != nil {
		if err := a.history.Save(ctx, conversationID, transcript); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	return &ChatResponse{
		ConversationID: conversationID,
		Message:        reply,
		Timestamp:      a.now().UTC(),
	}, nil
}

func (a *Assistant) complete(ctx context.Context, transcript []openai.ChatCompletionMessage) (string, []openai.ChatCompletionMessage, error) {
	system := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt(a.now().In(a.loc).Format("2006-01-02")),
	}
	defs := toolDefinitions()

	for round := 0; round < a.maxRounds; round++ {
		msg, err := a.createCompletion(ctx, append([]openai.ChatCompletionMessage{system}, transcript...), defs)
		if err != nil {
			return "", transcript, err
		}
		transcript = append(transcript, msg)

		if len(msg.ToolCalls) == 0 {
			return strings.TrimSpace(msg.Content), transcript, nil
		}

		for _, call := range msg.ToolCalls {
			transcript = append(transcript, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    a.runTool(ctx, call),
				ToolCallID: call.ID,
			})
		}
	}

	a.logger.Warn("tool rounds exhausted", "max_rounds", a.maxRounds)
	transcript = append(transcript, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: msgRoundsExhausted,
	})
	return msgRoundsExhausted, transcript, nil
}

func (a *Assistant) createCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, defs []openai.Tool) (openai.ChatCompletionMessage, error) {
	ctx, span := tracer.Start(ctx, "assistant.openai")
	defer span.End()

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
		Tools:    defs,
	})
	if err != nil {
		span.RecordError(err)
		return openai.ChatCompletionMessage{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		span.RecordError(ErrNoChoices)
		return openai.ChatCompletionMessage{}, ErrNoChoices
	}
	span.SetAttributes(attribute.Int("dental.openai.tool_calls", len(resp.Choices[0].Message.ToolCalls)))
	return resp.Choices[0].Message, nil
}

// runTool never fails the reply: errors are reported back to the model.
func (a *Assistant) runTool(ctx context.Context, call openai.ToolCall) string {
	out, err := a.tools.Execute(ctx, call.Function.Name, []byte(call.Function.Arguments))
	if err != nil {
		a.logger.Warn("tool call rejected", "tool", call.Function.Name, "error", err)
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(payload)
	}
	return out
}

// unseenMessages strips the stored visible turns from the front of incoming.
// Tool traffic is not visible to clients and is skipped. When incoming does
// not start with the whole stored history it is treated as new turns only.
func unseenMessages(stored, incoming []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	var visible []openai.ChatCompletionMessage
	for _, m := range stored {
		if m.Role == openai.ChatMessageRoleTool || len(m.ToolCalls) > 0 {
			continue
		}
		if m.Role == openai.ChatMessageRoleUser || m.Role == openai.ChatMessageRoleAssistant {
			visible = append(visible, m)
		}
	}
	if len(visible) == 0 || len(incoming) < len(visible) {
		return incoming
	}
	for i, m := range visible {
		if incoming[i].Role != m.Role || strings.TrimSpace(incoming[i].Content) != strings.TrimSpace(m.Content) {
			return incoming
		}
	}
	return incoming[len(visible):]
}

// filterMessages drops invalid roles and client system messages and masks
// injection attempts in user text. Tool and function messages are accepted
// but not forwarded since they cannot be tied to a tool call of ours.
func filterMessages(in []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(in))
	for _, m := range in {
		if !validRole(m.Role) {
			continue
		}
		switch m.Role {
		case openai.ChatMessageRoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: sanitizeUserInput(m.Content)})
		case openai.ChatMessageRoleAssistant:
			out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
		}
	}
	return out
}

func toolDefinitions() []openai.Tool {
	defs := tools.Definitions()
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}
