package tier

import (
	"manhwa-recommender/internal/common/config"
	"manhwa-recommender/internal/models"
)

// Thresholds gate escalation. Usage values are strict upper bounds, the
// off-peak window is inclusive.
type Thresholds struct {
	StandardCPU    int
	StandardMemory int
	MinHistory     int
	EnhancedCPU    int
	EnhancedMemory int
	OffPeakStart   int
	OffPeakEnd     int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		StandardCPU:    70,
		StandardMemory: 70,
		MinHistory:     5,
		EnhancedCPU:    50,
		EnhancedMemory: 50,
		OffPeakStart:   2,
		OffPeakEnd:     5,
	}
}

func FromConfig(cfg config.TierThresholds) Thresholds {
	return Thresholds{
		StandardCPU:    cfg.StandardCPU,
		StandardMemory: cfg.StandardMemory,
		MinHistory:     cfg.MinHistory,
		EnhancedCPU:    cfg.EnhancedCPU,
		EnhancedMemory: cfg.EnhancedMemory,
		OffPeakStart:   cfg.OffPeakStart,
		OffPeakEnd:     cfg.OffPeakEnd,
	}
}

type Selector struct {
	thresholds Thresholds
}

func NewSelector(t Thresholds) *Selector {
	return &Selector{thresholds: t}
}

// Select starts at lightweight and escalates while the snapshot leaves
// headroom. It holds no state.
func (s *Selector) Select(snap models.ResourceSnapshot, historyCount, hour int) models.Tier {
	t := s.thresholds

	if snap.CPU >= t.StandardCPU || snap.Memory >= t.StandardMemory || historyCount < t.MinHistory {
		return models.TierLightweight
	}

	offPeak := hour >= t.OffPeakStart && hour <= t.OffPeakEnd
	if offPeak && snap.CPU < t.EnhancedCPU && snap.Memory < t.EnhancedMemory {
		return models.TierEnhanced
	}
	return models.TierStandard
}
