package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"leadflow/internal/leadflow/domain/model"
	"leadflow/internal/shared/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// createTestRedisClient creates a Redis client on the test database
func createTestRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         "localhost:6379",
		DB:           15,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func TestRedisJournal_AppendAndRecent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := createTestRedisClient()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available for testing:", err)
	}

	prefix := "leadflow:test:" + primitive.NewObjectID().Hex() + ":"
	journal := NewRedisJournal(client, prefix, 3, logger.NewNopLogger())
	defer func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()
		client.Del(cleanupCtx, prefix+"p1", prefix+"p2")
		_ = journal.Close()
	}()

	at := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, journal.Append(ctx, model.NewLeadAdvancedEvent("p1", "l1", "New", "Qualified", at)))
	require.NoError(t, journal.Append(ctx, model.NewLeadAdvancedEvent("p1", "l1", "Qualified", "Meeting", at.Add(time.Second))))
	require.NoError(t, journal.Append(ctx, model.NewLeadAssignedEvent("p2", "l9", nil, at)))

	entries, err := journal.Recent(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	newest := entries[0]
	assert.Equal(t, model.EventLeadAdvanced, newest.Type)
	assert.Equal(t, "p1", newest.ProjectID)
	assert.True(t, at.Add(time.Second).Equal(newest.OccurredAt))

	var msg model.LeadAdvancedMessage
	require.NoError(t, json.Unmarshal(newest.Message, &msg))
	assert.Equal(t, "Meeting", msg.To)

	empty, err := journal.Recent(ctx, "never-used", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParseJournalMessage(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		entry, err := parseJournalMessage(redis.XMessage{
			ID: "1-0",
			Values: map[string]interface{}{
				"type":        "lead_advanced",
				"project_id":  "p1",
				"message":     `{"type":"lead_advanced"}`,
				"occurred_at": "1700000000000000000",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "1-0", entry.ID)
		assert.Equal(t, model.EventLeadAdvanced, entry.Type)
		assert.Equal(t, int64(1700000000), entry.OccurredAt.Unix())
	})

	t.Run("missing message", func(t *testing.T) {
		_, err := parseJournalMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{}})
		assert.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := parseJournalMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"message": "{"}})
		assert.Error(t, err)
	})
}
