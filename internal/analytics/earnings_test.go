package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nodewatch/storj-node-monitor/internal/model"
)

func TestStorageEarningsTrapezoidalIntegration(t *testing.T) {
	periodStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) // January: 31 days, 744 hours
	periodEnd := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	snaps := []model.StorageSnapshot{
		{Timestamp: periodStart, UsedBytes: ptr(bytesPerTB)},
		{Timestamp: periodStart.Add(744 * time.Hour), UsedBytes: ptr(bytesPerTB)},
	}
	pricing := PricingConfig{StoragePerTB: 1.5, OperatorShare: 1.0}

	gross, net := StorageEarnings(snaps, periodStart, periodEnd, pricing)
	assert.InDelta(t, 1.5, gross, 1e-6, "1 TB held for the full month is exactly 1 TB-month")
	assert.InDelta(t, gross, net, 1e-9)
}

func TestStorageEarningsUnderflowsToZeroWithoutEnoughSamples(t *testing.T) {
	periodStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	snaps := []model.StorageSnapshot{{Timestamp: periodStart, UsedBytes: ptr(bytesPerTB)}}

	gross, net := StorageEarnings(snaps, periodStart, periodEnd, PricingConfig{StoragePerTB: 1.5})
	assert.Equal(t, 0.0, gross)
	assert.Equal(t, 0.0, net)
}

func TestStorageEarningsSubdivisionInvariance(t *testing.T) {
	periodStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	pricing := PricingConfig{StoragePerTB: 1.5, OperatorShare: 1.0}

	coarse := []model.StorageSnapshot{
		{Timestamp: periodStart, UsedBytes: ptr(bytesPerTB)},
		{Timestamp: periodStart.Add(10 * time.Hour), UsedBytes: ptr(2 * bytesPerTB)},
	}
	fine := []model.StorageSnapshot{
		{Timestamp: periodStart, UsedBytes: ptr(bytesPerTB)},
		{Timestamp: periodStart.Add(5 * time.Hour), UsedBytes: ptr((bytesPerTB + 2*bytesPerTB) / 2)},
		{Timestamp: periodStart.Add(10 * time.Hour), UsedBytes: ptr(2 * bytesPerTB)},
	}

	grossCoarse, _ := StorageEarnings(coarse, periodStart, periodEnd, pricing)
	grossFine, _ := StorageEarnings(fine, periodStart, periodEnd, pricing)
	assert.InDelta(t, grossCoarse, grossFine, 1e-6, "trapezoidal rule is invariant under subdividing a linear interval")
}

func TestTrafficEarningsClassifiesByAction(t *testing.T) {
	events := []model.TrafficEvent{
		{Action: "GET", Status: model.StatusSuccess, Size: bytesPerTB},
		{Action: "GET_REPAIR", Status: model.StatusSuccess, Size: bytesPerTB},
		{Action: "GET_AUDIT", Status: model.StatusSuccess, Size: bytesPerTB},
		{Action: "GET", Status: model.StatusFailed, Size: bytesPerTB},
		{Action: "PUT", Status: model.StatusSuccess, Size: bytesPerTB},
	}
	pricing := PricingConfig{EgressPerTB: 7, RepairPerTB: 10, AuditPerTB: 10}

	egress, repair, audit := TrafficEarnings(events, pricing)
	assert.InDelta(t, 7.0, egress, 1e-6)
	assert.InDelta(t, 10.0, repair, 1e-6)
	assert.InDelta(t, 10.0, audit, 1e-6)
}

func TestExtrapolateCurrentMonth(t *testing.T) {
	e := ExtrapolateCurrentMonth(50, 15, 30, true, false)
	assert.InDelta(t, 100, e.Extrapolated, 1e-9)
	assert.InDelta(t, 0.75*0.7, e.Confidence, 1e-9) // time_confidence=0.5+0.5*0.5, data_confidence=0.7

}

func TestExtrapolatePastMonthHasFullTimeConfidence(t *testing.T) {
	e := ExtrapolateCurrentMonth(100, 31, 31, false, true)
	assert.InDelta(t, 100, e.Extrapolated, 1e-9)
	assert.InDelta(t, 1.0, e.Confidence, 1e-9)
}

func TestExtrapolateGuardsZeroDaysElapsed(t *testing.T) {
	e := ExtrapolateCurrentMonth(0, 0, 30, true, false)
	assert.False(t, math.IsInf(e.Extrapolated, 0), "must not divide by zero")
	assert.False(t, math.IsNaN(e.Extrapolated))
}
