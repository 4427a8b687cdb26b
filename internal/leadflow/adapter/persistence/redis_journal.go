package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"leadflow/internal/leadflow/domain/model"
	"leadflow/internal/leadflow/domain/repository"
	"leadflow/internal/shared/logger"

	"github.com/redis/go-redis/v9"
)

// RedisJournal implements repository.EventJournal with one capped Redis
// stream per project.
type RedisJournal struct {
	client *redis.Client
	prefix string
	maxLen int64
	logger logger.Logger
}

var _ repository.EventJournal = (*RedisJournal)(nil)

// NewRedisJournal creates a journal writing to streams named prefix+projectID.
func NewRedisJournal(client *redis.Client, prefix string, maxLen int64, log logger.Logger) *RedisJournal {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RedisJournal{
		client: client,
		prefix: prefix,
		maxLen: maxLen,
		logger: log.WithComponent("redis_journal"),
	}
}

func (r *RedisJournal) streamName(projectID string) string {
	return r.prefix + projectID
}

// Append records event on its project's stream, trimming the stream to
// roughly maxLen entries.
func (r *RedisJournal) Append(ctx context.Context, event model.PipelineEvent) error {
	payload, err := json.Marshal(event.Message)
	if err != nil {
		return fmt.Errorf("serialize journal event: %w", err)
	}

	stream := r.streamName(event.ProjectID)
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":        string(event.Type()),
			"project_id":  event.ProjectID,
			"message":     payload,
			"occurred_at": event.OccurredAt.UnixNano(),
		},
	}).Result()
	if err != nil {
		r.logger.WithFields(map[string]interface{}{
			"stream":     stream,
			"event_type": event.Type(),
		}).Errorf("Failed to append event to journal: %v", err)
		return err
	}

	r.logger.WithFields(map[string]interface{}{
		"stream":   stream,
		"entry_id": id,
	}).Debug("Event journaled")
	return nil
}

// Recent returns the newest entries of a project's stream. A project that
// never had an event yields an empty slice.
func (r *RedisJournal) Recent(ctx context.Context, projectID string, limit int64) ([]model.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	messages, err := r.client.XRevRangeN(ctx, r.streamName(projectID), "+", "-", limit).Result()
	if err != nil {
		if err == redis.Nil {
			return []model.JournalEntry{}, nil
		}
		return nil, fmt.Errorf("read journal: %w", err)
	}

	entries := make([]model.JournalEntry, 0, len(messages))
	for _, msg := range messages {
		entry, err := parseJournalMessage(msg)
		if err != nil {
			r.logger.Warnf("Skipping malformed journal entry %s: %v", msg.ID, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *RedisJournal) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisJournal) Close() error {
	return r.client.Close()
}

func parseJournalMessage(msg redis.XMessage) (model.JournalEntry, error) {
	entry := model.JournalEntry{ID: msg.ID}

	if v, ok := msg.Values["type"].(string); ok {
		entry.Type = model.EventType(v)
	}
	if v, ok := msg.Values["project_id"].(string); ok {
		entry.ProjectID = v
	}

	raw, ok := msg.Values["message"].(string)
	if !ok {
		return entry, fmt.Errorf("missing message field")
	}
	if !json.Valid([]byte(raw)) {
		return entry, fmt.Errorf("message is not valid JSON")
	}
	entry.Message = json.RawMessage(raw)

	if v, ok := msg.Values["occurred_at"].(string); ok {
		nanos, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return entry, fmt.Errorf("bad occurred_at: %w", err)
		}
		entry.OccurredAt = time.Unix(0, nanos).UTC()
	}
	return entry, nil
}
