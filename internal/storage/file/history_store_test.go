package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpswap-radar/internal/domain"
	"pumpswap-radar/internal/storage"
)

const testPair = "Poo1Address11111111111111111111111111111111"

func testHistory(n int) []*domain.PoolMetrics {
	history := make([]*domain.PoolMetrics, n)
	for i := range history {
		history[i] = &domain.PoolMetrics{
			Timestamp: time.Date(2025, 6, 1, 12, i, 0, 0, time.UTC),
			Mcap:      float64(100000 + i),
			WhaleTxns: []*domain.TraderLedger{
				{
					Address:          "whale",
					LastKnownBalance: 30e6,
					Txns: []domain.TradeEntry{
						{
							Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
							Side:        domain.SideBuy,
							AmountQuote: 5,
							AmountBase:  50000,
						},
					},
				},
			},
			HolderDistribution: domain.HolderDistribution{
				Over10M:  2,
				Top10Pct: 40,
				Holders:  120,
			},
			VolumeMetrics: domain.VolumeMetrics{Buys: 3, BuyVolume: 1.5},
		}
	}
	return history
}

func TestSaveAndGetByPair(t *testing.T) {
	store, err := NewHistoryStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	history := testHistory(2)
	require.NoError(t, store.Save(ctx, testPair, history))

	got, err := store.GetByPair(ctx, testPair)
	require.NoError(t, err)
	assert.Equal(t, history, got)
}

func TestSaveOverwrites(t *testing.T) {
	store, err := NewHistoryStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testPair, testHistory(1)))
	require.NoError(t, store.Save(ctx, testPair, testHistory(3)))

	got, err := store.GetByPair(ctx, testPair)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestGetByPairNotFound(t *testing.T) {
	store, err := NewHistoryStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.GetByPair(context.Background(), "UnknownPair")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewHistoryStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), testPair, testHistory(1)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testPair+".json", entries[0].Name())
}

func TestNewHistoryStoreCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	_, err := NewHistoryStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
