package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agendmed/internal/messaging"
)

func newTestRedisTranscripts(t *testing.T) (*RedisTranscriptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTranscriptStore(client), mr
}

func transcriptStores(t *testing.T) map[string]TranscriptStore {
	redisStore, _ := newTestRedisTranscripts(t)
	return map[string]TranscriptStore{
		"redis":  redisStore,
		"memory": NewMemoryTranscriptStore(),
	}
}

func TestTranscriptStoreAppendAndList(t *testing.T) {
	base := time.Date(2030, 1, 10, 13, 0, 0, 0, time.UTC)
	for name, store := range transcriptStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Append(ctx, "5511999990001", messaging.TranscriptMessage{Role: messaging.RoleUser, Content: "oi", ContactName: "Ana", Timestamp: base}))
			require.NoError(t, store.Append(ctx, "5511999990001", messaging.TranscriptMessage{Role: messaging.RoleBot, Content: "Olá Ana!", Timestamp: base.Add(time.Second)}))
			require.NoError(t, store.Append(ctx, "5511999990001", messaging.TranscriptMessage{Role: messaging.RoleUser, Content: "1", ContactName: "Ana", Timestamp: base.Add(2 * time.Second)}))

			all, err := store.List(ctx, "5511999990001", 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "oi", all[0].Content)
			assert.Equal(t, messaging.RoleBot, all[1].Role)

			last, err := store.List(ctx, "5511999990001", 2)
			require.NoError(t, err)
			require.Len(t, last, 2)
			assert.Equal(t, "Olá Ana!", last[0].Content)

			empty, err := store.List(ctx, "5511000000000", 0)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestTranscriptStoreConversations(t *testing.T) {
	base := time.Date(2030, 1, 10, 13, 0, 0, 0, time.UTC)
	for name, store := range transcriptStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Append(ctx, "1", messaging.TranscriptMessage{Role: messaging.RoleUser, Content: "oi", ContactName: "Ana", Timestamp: base}))
			require.NoError(t, store.Append(ctx, "1", messaging.TranscriptMessage{Role: messaging.RoleBot, Content: "menu", Timestamp: base.Add(time.Second)}))
			require.NoError(t, store.Append(ctx, "2", messaging.TranscriptMessage{Role: messaging.RoleUser, Content: "agendar", ContactName: "Bruno", Timestamp: base.Add(time.Minute)}))

			convs, err := store.Conversations(ctx)
			require.NoError(t, err)
			require.Len(t, convs, 2)
			assert.Equal(t, "2", convs[0].PhoneNumber)
			assert.Equal(t, "Bruno", convs[0].ContactName)
			assert.Equal(t, "1", convs[1].PhoneNumber)
			assert.Equal(t, "Ana", convs[1].ContactName)
			assert.Equal(t, int64(2), convs[1].MessageCount)
			assert.Equal(t, "menu", convs[1].LastMessage)
			assert.True(t, convs[1].LastTimestamp.Equal(base.Add(time.Second)))

			require.NoError(t, store.Delete(ctx, "1"))
			convs, err = store.Conversations(ctx)
			require.NoError(t, err)
			require.Len(t, convs, 1)
			assert.Equal(t, "2", convs[0].PhoneNumber)
		})
	}
}

func TestRedisTranscriptStoreExpiresAndPrunesIndex(t *testing.T) {
	store, mr := newTestRedisTranscripts(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "1", messaging.TranscriptMessage{Role: messaging.RoleUser, Content: "oi"}))

	assert.Equal(t, transcriptTTL, mr.TTL(transcriptKey("1")))

	mr.FastForward(transcriptTTL + time.Second)
	convs, err := store.Conversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs)

	members, err := mr.ZMembers(transcriptIndexKey)
	if err == nil {
		assert.Empty(t, members)
	}
}

func TestRedisTranscriptStoreTrims(t *testing.T) {
	store, _ := newTestRedisTranscripts(t)
	store.maxMessages = 3
	ctx := context.Background()
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, store.Append(ctx, "1", messaging.TranscriptMessage{Role: messaging.RoleUser, Content: text}))
	}
	msgs, err := store.List(ctx, "1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "c", msgs[0].Content)
}

func TestTranscriptStoreRejectsEmptyCaller(t *testing.T) {
	for name, store := range transcriptStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, store.Append(context.Background(), "", messaging.TranscriptMessage{Content: "x"}))
		})
	}
}
