package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "armora/pkg/domain"
	audit "armora/pkg/platform/audit"
	"armora/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	armoryID := id.ArmoryID(uuid.New())
	event := audit.Event{
		ArmoryID: armoryID,
		Action:   audit.ActionItemsIssued,
		Detail:   map[string]int{"weapon:Rifle-A/batch-1": 4},
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), armoryID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionItemsIssued, events[0].Action)
	assert.False(t, events[0].Timestamp.IsZero(), "timestamp should be stamped on emit")
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))

	armoryID := id.ArmoryID(uuid.New())
	for i := 0; i < 5; i++ {
		err := pub.Emit(context.Background(), audit.Event{
			ArmoryID: armoryID,
			Action:   audit.ActionItemsReturned,
		})
		require.NoError(t, err)
	}

	// Close flushes the buffer.
	pub.Close()

	events, err := store.ListByArmory(context.Background(), armoryID)
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestPublisher_AsyncFullBufferDropsInsteadOfBlocking(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	pub := NewPublisher(store, WithAsyncBuffer(1))

	// First event occupies the drain goroutine, second fills the buffer,
	// third must drop without blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			_ = pub.Emit(context.Background(), audit.Event{Action: audit.ActionItemsIssued})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full async buffer")
	}

	close(store.release)
	pub.Close()
}

type blockingStore struct {
	release chan struct{}
}

func (s *blockingStore) Append(ctx context.Context, event audit.Event) error {
	<-s.release
	return nil
}

func (s *blockingStore) ListByArmory(ctx context.Context, armoryID id.ArmoryID) ([]audit.Event, error) {
	return nil, nil
}
