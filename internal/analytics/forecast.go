package analytics

import (
	"time"

	"github.com/nodewatch/storj-node-monitor/internal/model"
)

// StorageForecast is the result of projecting used-byte growth forward.
type StorageForecast struct {
	WindowDays      int
	SlopeBytesPerSec float64
	DaysUntilFull   *float64 // nil when the trend is flat/shrinking
}

// ForecastStorage fits used_bytes vs. time over snapshots, ignoring any
// snapshot without a recorded used_bytes, and reports when the node's
// remaining available bytes will be exhausted at the fitted growth rate.
// windowDays is recorded for display only; the caller is expected to have
// already filtered snapshots to the desired window.
func ForecastStorage(snapshots []model.StorageSnapshot, windowDays int) StorageForecast {
	var points []timedValue
	var latestAvailable int64
	haveAvailable := false

	for _, s := range snapshots {
		if s.UsedBytes == nil {
			continue
		}
		points = append(points, timedValue{at: s.Timestamp, value: float64(*s.UsedBytes)})
		if s.AvailableBytes != nil {
			latestAvailable = *s.AvailableBytes
			haveAvailable = true
		}
	}

	f := StorageForecast{WindowDays: windowDays}
	if len(points) < 2 || !haveAvailable {
		return f
	}

	slope := timeRegressionSlope(points)
	f.SlopeBytesPerSec = slope
	if slope <= 0 {
		return f
	}

	days := (float64(latestAvailable) / slope) / 86400
	f.DaysUntilFull = &days
	return f
}

// heldAmountSchedule is the (month range → held fraction) step function.
var heldAmountSchedule = []struct {
	minMonth int
	fraction float64
}{
	{1, 0.75},
	{4, 0.50},
	{7, 0.25},
	{10, 0.00},
	{16, 0.00},
}

// HeldPercentage returns the held-amount fraction for a node age in months,
// a piecewise-constant step function on the month boundaries in the held
// amount schedule. Ages below 1 month are treated as month 1.
func HeldPercentage(ageMonths int) float64 {
	if ageMonths < 1 {
		ageMonths = 1
	}
	fraction := heldAmountSchedule[0].fraction
	for _, step := range heldAmountSchedule {
		if ageMonths >= step.minMonth {
			fraction = step.fraction
		}
	}
	return fraction
}

// DaysInMonth returns the number of days in the month containing t.
func DaysInMonth(t time.Time) int {
	firstOfNext := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	firstOfThis := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return int(firstOfNext.Sub(firstOfThis).Hours() / 24)
}

// StoragePercentages computes used/trash percentages from raw byte counts.
// `available` is the remaining bytes, not the disk total — total is
// used+available, and both percentages are computed against that sum rather
// than against available alone.
func StoragePercentages(usedBytes, availableBytes, trashBytes int64) (usedPercent, trashPercent, availablePercent float64) {
	total := usedBytes + availableBytes
	if total <= 0 {
		return 0, 0, 0
	}
	usedPercent = float64(usedBytes) / float64(total) * 100
	trashPercent = float64(trashBytes) / float64(total) * 100
	availablePercent = float64(availableBytes) / float64(total) * 100
	return
}
