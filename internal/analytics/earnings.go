package analytics

import (
	"sort"
	"time"

	"github.com/nodewatch/storj-node-monitor/internal/model"
)

const bytesPerTB = 1024 * 1024 * 1024 * 1024

// PricingConfig carries the configured per-TB rates and operator share used
// to convert raw byte/byte-hour totals into dollar amounts.
type PricingConfig struct {
	EgressPerTB  float64
	StoragePerTB float64
	RepairPerTB  float64
	AuditPerTB   float64
	OperatorShare float64
}

// StorageEarnings integrates used_bytes over the period via the trapezoidal
// rule, converting byte-hours to TB-months and applying price and operator
// share. Samples must be provided in ascending timestamp order; fewer than
// two usable samples yields zero (no basis for integration).
func StorageEarnings(snapshots []model.StorageSnapshot, periodStart, periodEnd time.Time, pricing PricingConfig) (gross, net float64) {
	var points []timedValue
	for _, s := range snapshots {
		if s.UsedBytes == nil {
			continue
		}
		if s.Timestamp.Before(periodStart) || s.Timestamp.After(periodEnd) {
			continue
		}
		points = append(points, timedValue{at: s.Timestamp, value: float64(*s.UsedBytes)})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].at.Before(points[j].at) })

	if len(points) < 2 {
		return 0, 0
	}

	var byteHours float64
	for i := 1; i < len(points); i++ {
		dtHours := points[i].at.Sub(points[i-1].at).Hours()
		avg := (points[i].value + points[i-1].value) / 2
		byteHours += avg * dtHours
	}

	hoursInMonth := float64(DaysInMonth(periodStart)) * 24
	tbMonths := byteHours / (bytesPerTB * hoursInMonth)

	gross = tbMonths * pricing.StoragePerTB
	net = gross * pricing.OperatorShare
	return gross, net
}

// trafficClass identifies which per-action-class price a TrafficEvent's
// successful transfer counts against.
type trafficClass int

const (
	classEgress trafficClass = iota
	classRepair
	classAudit
	classNone
)

func classify(action string) trafficClass {
	switch model.Action(action) {
	case model.ActionGet:
		return classEgress
	case model.ActionGetRepair:
		return classRepair
	case model.ActionGetAudit:
		return classAudit
	default:
		return classNone
	}
}

// TrafficEarnings sums successful transfer bytes per action class over the
// events given and prices each class's total.
func TrafficEarnings(events []model.TrafficEvent, pricing PricingConfig) (egressGross, repairGross, auditGross float64) {
	var egressBytes, repairBytes, auditBytes int64

	for _, e := range events {
		if e.Status != model.StatusSuccess {
			continue
		}
		switch classify(e.Action) {
		case classEgress:
			egressBytes += e.Size
		case classRepair:
			repairBytes += e.Size
		case classAudit:
			auditBytes += e.Size
		}
	}

	toTB := func(b int64) float64 { return float64(b) / bytesPerTB }
	egressGross = toTB(egressBytes) * pricing.EgressPerTB
	repairGross = toTB(repairBytes) * pricing.RepairPerTB
	auditGross = toTB(auditBytes) * pricing.AuditPerTB
	return
}

// Extrapolation is the current-month projection of a partial-period total.
type Extrapolation struct {
	Extrapolated float64
	Confidence   float64
}

const extrapolationEpsilon = 1e-6

// ExtrapolateCurrentMonth projects a partial-month total to a full-month
// estimate. isCurrentMonth controls the time-confidence term: past,
// already-closed months are reported with full time confidence.
func ExtrapolateCurrentMonth(current float64, daysElapsed, daysInMonth int, isCurrentMonth, haveStorageSamples bool) Extrapolation {
	p := float64(daysElapsed) / float64(daysInMonth)
	if p < extrapolationEpsilon {
		p = extrapolationEpsilon
	}

	timeConfidence := 1.0
	if isCurrentMonth {
		timeConfidence = 0.5 + 0.5*p
	}
	dataConfidence := 0.7
	if haveStorageSamples {
		dataConfidence = 1.0
	}

	return Extrapolation{
		Extrapolated: current / p,
		Confidence:   timeConfidence * dataConfidence,
	}
}
