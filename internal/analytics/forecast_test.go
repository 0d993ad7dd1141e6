package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nodewatch/storj-node-monitor/internal/model"
)

func ptr(i int64) *int64 { return &i }

func TestForecastStorageGrowingTrend(t *testing.T) {
	now := time.Now()
	snaps := []model.StorageSnapshot{
		{Timestamp: now.Add(-3 * 24 * time.Hour), UsedBytes: ptr(1000), AvailableBytes: ptr(9000)},
		{Timestamp: now.Add(-2 * 24 * time.Hour), UsedBytes: ptr(2000), AvailableBytes: ptr(8000)},
		{Timestamp: now.Add(-1 * 24 * time.Hour), UsedBytes: ptr(3000), AvailableBytes: ptr(7000)},
	}

	f := ForecastStorage(snaps, 7)
	if assert.NotNil(t, f.DaysUntilFull) {
		assert.Greater(t, *f.DaysUntilFull, 0.0)
	}
}

func TestForecastStorageFlatOrShrinkingHasNoDaysUntilFull(t *testing.T) {
	now := time.Now()
	snaps := []model.StorageSnapshot{
		{Timestamp: now.Add(-2 * 24 * time.Hour), UsedBytes: ptr(5000), AvailableBytes: ptr(5000)},
		{Timestamp: now.Add(-1 * 24 * time.Hour), UsedBytes: ptr(4000), AvailableBytes: ptr(6000)},
	}
	f := ForecastStorage(snaps, 7)
	assert.Nil(t, f.DaysUntilFull)
}

func TestForecastStorageIgnoresPartialSnapshots(t *testing.T) {
	now := time.Now()
	snaps := []model.StorageSnapshot{
		{Timestamp: now.Add(-2 * 24 * time.Hour), UsedBytes: nil, AvailableBytes: ptr(5000)},
	}
	f := ForecastStorage(snaps, 7)
	assert.Nil(t, f.DaysUntilFull)
}

func TestHeldPercentageSchedule(t *testing.T) {
	cases := map[int]float64{
		1: 0.75, 3: 0.75,
		4: 0.50, 6: 0.50,
		7: 0.25, 9: 0.25,
		10: 0.00, 15: 0.00,
		16: 0.00,
	}
	for month, want := range cases {
		assert.Equal(t, want, HeldPercentage(month), "month %d", month)
	}
}

func TestStoragePercentagesExcludesTrashFromDenominator(t *testing.T) {
	used, trash, avail := StoragePercentages(8e9, 10e9, 1e9)
	assert.InDelta(t, 44.444, used, 0.01)
	assert.InDelta(t, 5.556, trash, 0.01)
	assert.InDelta(t, 55.556, avail, 0.01)
}

func TestStoragePercentagesZeroTotal(t *testing.T) {
	used, trash, avail := StoragePercentages(0, 0, 0)
	assert.Equal(t, 0.0, used)
	assert.Equal(t, 0.0, trash)
	assert.Equal(t, 0.0, avail)
}
