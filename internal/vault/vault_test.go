package vault

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emma/internal/queue"
)

func openTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := Open(filepath.Join(t.TempDir(), "emma.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func sampleMemory() queue.Memory {
	return queue.Memory{
		Content:     "User: how do I parse HTML in Go?",
		Role:        "user",
		Type:        "conversation",
		Source:      "chatgpt",
		CaptureType: "automatic",
		URL:         "https://chat.openai.com/c/abc",
		Domain:      "chat.openai.com",
		CapturedAt:  time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Metadata:    map[string]any{"turn": "1"},
	}
}

func TestAddMemoryRoundTrip(t *testing.T) {
	v := openTestVault(t)
	ctx := context.Background()

	id, err := v.AddMemory(ctx, sampleMemory())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	memories, err := v.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	got := memories[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "User: how do I parse HTML in Go?", got.Content)
	assert.Equal(t, "conversation", got.Type)
	assert.Equal(t, "chat.openai.com", got.Domain)
	assert.Equal(t, map[string]any{"turn": "1"}, got.Metadata)
	assert.True(t, got.CapturedAt.Equal(sampleMemory().CapturedAt))
}

func TestAddMemoryDeduplicatesRedelivery(t *testing.T) {
	// Flush retries redeliver already-stored items; the second write must be
	// a no-op returning the original id.
	v := openTestVault(t)
	ctx := context.Background()

	first, err := v.AddMemory(ctx, sampleMemory())
	require.NoError(t, err)

	second, err := v.AddMemory(ctx, sampleMemory())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stats, err := v.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Memories)
}

func TestAddMemoryDistinctContentDistinctRows(t *testing.T) {
	v := openTestVault(t)
	ctx := context.Background()

	a := sampleMemory()
	b := sampleMemory()
	b.Content = "Assistant: use golang.org/x/net/html."
	b.Role = "assistant"

	idA, err := v.AddMemory(ctx, a)
	require.NoError(t, err)
	idB, err := v.AddMemory(ctx, b)
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)
}

func TestAddMemoryStoresAttachments(t *testing.T) {
	v := openTestVault(t)
	ctx := context.Background()

	m := sampleMemory()
	m.Attachments = []queue.Attachment{
		{Technique: "canvas", MIME: "image/jpeg", Bytes: []byte{0xff, 0xd8}},
		{Technique: "screenshot", MIME: "image/jpeg", Bytes: []byte{0xff, 0xd8, 0xff}},
	}

	_, err := v.AddMemory(ctx, m)
	require.NoError(t, err)

	stats, err := v.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Attachments)
}

func TestStatsGroupsByTypeAndDomain(t *testing.T) {
	v := openTestVault(t)
	ctx := context.Background()

	docs := sampleMemory()
	docs.Content = "pre-formatted snippet"
	docs.Type = "code"
	docs.Domain = "github.com"

	_, err := v.AddMemory(ctx, sampleMemory())
	require.NoError(t, err)
	_, err = v.AddMemory(ctx, docs)
	require.NoError(t, err)

	stats, err := v.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Memories)
	assert.Equal(t, 1, stats.ByType["conversation"])
	assert.Equal(t, 1, stats.ByType["code"])
	assert.Equal(t, 1, stats.ByDomain["github.com"])
}

func TestListNewestFirstWithLimit(t *testing.T) {
	v := openTestVault(t)
	ctx := context.Background()

	for i, content := range []string{"oldest", "middle", "newest"} {
		m := sampleMemory()
		m.Content = content
		m.CapturedAt = time.Date(2026, 8, 20, 10, i, 0, 0, time.UTC)
		_, err := v.AddMemory(ctx, m)
		require.NoError(t, err)
	}

	memories, err := v.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, memories, 2)
	assert.Equal(t, "newest", memories[0].Content)
	assert.Equal(t, "middle", memories[1].Content)
}

func TestQueueFlushesIntoVault(t *testing.T) {
	v := openTestVault(t)
	q := queue.New(v, nil)

	err := q.Enqueue(context.Background(), sampleMemory())
	require.NoError(t, err)
	assert.Zero(t, q.Len())

	stats, err := v.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Memories)
}
