package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"
)

const defaultHistoryTTL = 24 * time.Hour

// historyStore keeps chat transcripts, without the system prompt, in Redis.
type historyStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func newHistoryStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *historyStore {
	if ttl <= 0 {
		ttl = defaultHistoryTTL
	}
	return &historyStore{redis: client, ttl: ttl, tracer: tracer}
}

func historyKey(conversationID string) string {
	return fmt.Sprintf("chat:%s", conversationID)
}

// Load returns nil for a conversation that was never saved or has expired.
func (s *historyStore) Load(ctx context.Context, conversationID string) ([]openai.ChatCompletionMessage, error) {
	ctx, span := s.tracer.Start(ctx, "assistant.load_history")
	defer span.End()

	data, err := s.redis.Get(ctx, historyKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	var history []openai.ChatCompletionMessage
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode chat history: %w", err)
	}
	return history, nil
}

func (s *historyStore) Save(ctx context.Context, conversationID string, history []openai.ChatCompletionMessage) error {
	ctx, span := s.tracer.Start(ctx, "assistant.save_history")
	defer span.End()

	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshal chat history: %w", err)
	}
	if err := s.redis.Set(ctx, historyKey(conversationID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("persist chat history: %w", err)
	}
	return nil
}
