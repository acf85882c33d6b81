package cachebus

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type evictions struct {
	mu  sync.Mutex
	ids []primitive.ObjectID
}

func (e *evictions) Evict(id primitive.ObjectID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, id)
}

func (e *evictions) list() []primitive.ObjectID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]primitive.ObjectID(nil), e.ids...)
}

func TestEncodeDecode(t *testing.T) {
	id := primitive.NewObjectID()
	origin, got, err := decode(encode("proc-a", id))
	require.NoError(t, err)
	assert.Equal(t, "proc-a", origin)
	assert.Equal(t, id, got)
}

func TestDecode_Malformed(t *testing.T) {
	for _, payload := range []string{"", "nospace", " " + primitive.NewObjectID().Hex(), "proc zzz"} {
		_, _, err := decode(payload)
		assert.Error(t, err, "payload %q", payload)
	}
}

func TestHandle_EvictsPeerMessagesOnly(t *testing.T) {
	ev := &evictions{}
	b := New(nil, "", ev, zap.NewNop())
	assert.Equal(t, DefaultChannel, b.channel)

	peer := primitive.NewObjectID()
	self := primitive.NewObjectID()
	b.handle(encode("other-process", peer))
	b.handle(encode(b.Origin(), self))
	b.handle("garbage")

	assert.Equal(t, []primitive.ObjectID{peer}, ev.list())
}

// TestBus_Redis runs against a real server when SHOPDESK_TEST_REDIS_ADDR is set.
func TestBus_Redis(t *testing.T) {
	addr := os.Getenv("SHOPDESK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SHOPDESK_TEST_REDIS_ADDR not set; skipping Redis test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := Connect(ctx, Config{Addr: addr}, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	channel := "shopdesk:test:" + primitive.NewObjectID().Hex()
	receiver := &evictions{}
	a := New(client, channel, &evictions{}, zap.NewNop())
	b := New(client, channel, receiver, zap.NewNop())

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = b.Run(runCtx) }()
	require.NoError(t, b.Wait(ctx, 3*time.Second))

	id := primitive.NewObjectID()
	a.Publish(id)

	require.Eventually(t, func() bool {
		return len(receiver.list()) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, id, receiver.list()[0])
}
