package service

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"fxhub/internal/domain"
)

// SnapshotMode selects when the coordinator reads the consensus snapshot.
type SnapshotMode string

const (
	// SnapshotPrior reads the snapshot before the incoming rate is cached.
	SnapshotPrior SnapshotMode = "prior"
	// SnapshotIncludeIncoming reads it after, so the incoming rate takes part
	// in its own consensus and dilutes its own deviation. It accepts quotes
	// that SnapshotPrior rejects.
	SnapshotIncludeIncoming SnapshotMode = "include_incoming"
)

const DefaultTolerancePercent = 1.0

// ToleranceValidator rejects a quote whose mid strays from the mean mid of
// the configured platforms by more than the tolerance.
type ToleranceValidator struct {
	platforms []string
	percent   float64
}

func NewToleranceValidator(platforms []string, percent float64) *ToleranceValidator {
	if percent <= 0 {
		percent = DefaultTolerancePercent
	}
	return &ToleranceValidator{
		platforms: append([]string(nil), platforms...),
		percent:   percent,
	}
}

func (v *ToleranceValidator) Percent() float64 { return v.percent }

// Check reports whether r is acceptable against snapshot (platform -> cached
// rate for r.Symbol).
func (v *ToleranceValidator) Check(r domain.Rate, snapshot map[string]domain.Rate) bool {
	ok, _ := v.Deviation(r, snapshot)
	return ok
}

// Deviation is Check that also returns the percentage difference. The
// difference is 0 whenever the rate is accepted without comparison.
func (v *ToleranceValidator) Deviation(r domain.Rate, snapshot map[string]domain.Rate) (bool, float64) {
	for _, p := range v.platforms {
		if p == r.Platform {
			continue
		}
		if _, ok := snapshot[p]; !ok {
			// bootstrap: not every platform has reported yet
			return true, 0
		}
	}

	mids := make([]float64, 0, len(v.platforms))
	for _, p := range v.platforms {
		cached, ok := snapshot[p]
		if !ok {
			continue
		}
		mid := cached.Mid()
		if mid <= 0 {
			return true, 0
		}
		mids = append(mids, mid)
	}
	if len(mids) == 0 {
		return true, 0
	}

	consensus := stat.Mean(mids, nil)
	newMid := r.Mid()
	if newMid <= 0 || consensus <= 0 {
		return true, 0
	}

	diff := math.Abs(newMid-consensus) / consensus * 100
	return diff <= v.percent, diff
}
