package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/engram-ai/engram-go/pkg/storage"
)

func TestLedgerDrainsOnClose(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Insert(context.Background(), &storage.Memory{ID: 1, Content: "x"}))

	ledger := newAccessLedger(store, zap.NewNop(), 16)
	for i := 0; i < 10; i++ {
		ledger.record([]*storage.AccessEvent{{
			ID:         int64(i + 1),
			MemoryID:   1,
			AccessType: storage.AccessSearch,
			CreatedAt:  time.Now(),
		}})
	}
	ledger.close()

	assert.Len(t, store.accessEvents(), 10)

	m, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), m.AccessCount)
}

func TestLedgerIgnoresEmptyBatches(t *testing.T) {
	store := newFakeStore()
	ledger := newAccessLedger(store, zap.NewNop(), 1)
	ledger.record(nil)
	ledger.record([]*storage.AccessEvent{})
	ledger.close()

	assert.Empty(t, store.accessEvents())
}

func TestLedgerCloseIsIdempotent(t *testing.T) {
	ledger := newAccessLedger(newFakeStore(), zap.NewNop(), 1)
	ledger.close()
	ledger.close()
}

func TestLedgerDropsBatchesAfterClose(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Insert(context.Background(), &storage.Memory{ID: 1, Content: "x"}))

	ledger := newAccessLedger(store, zap.NewNop(), 16)
	ledger.close()

	ledger.record([]*storage.AccessEvent{{
		ID:         1,
		MemoryID:   1,
		AccessType: storage.AccessSearch,
		CreatedAt:  time.Now(),
	}})

	assert.Empty(t, store.accessEvents())
}

func TestLedgerRecordRacesClose(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Insert(context.Background(), &storage.Memory{ID: 1, Content: "x"}))

	ledger := newAccessLedger(store, zap.NewNop(), 4)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ledger.record([]*storage.AccessEvent{{
					ID:         int64(n*100 + j),
					MemoryID:   1,
					AccessType: storage.AccessSearch,
					CreatedAt:  time.Now(),
				}})
			}
		}(i)
	}

	ledger.close()
	wg.Wait()
}
