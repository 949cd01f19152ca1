package projector

import "github.com/alanyoungcy/lobwatch/internal/domain"

// VPIN classification thresholds.
const (
	ToxicityMediumThreshold = 0.3
	ToxicityHighThreshold   = 0.6
)

// ToxicityLevel is the band a VPIN value falls in.
type ToxicityLevel string

const (
	ToxicityLow    ToxicityLevel = "low"
	ToxicityMedium ToxicityLevel = "medium"
	ToxicityHigh   ToxicityLevel = "high"
)

// ClassifyVPIN bands v: < 0.3 low, [0.3, 0.6) medium, >= 0.6 high.
func ClassifyVPIN(v float64) ToxicityLevel {
	switch {
	case v >= ToxicityHighThreshold:
		return ToxicityHigh
	case v >= ToxicityMediumThreshold:
		return ToxicityMedium
	default:
		return ToxicityLow
	}
}

// ToxicityPoint is one VPIN bar.
type ToxicityPoint struct {
	Timestamp domain.Timestamp `json:"timestamp"`
	VPIN      float64          `json:"vpin"`
	Level     ToxicityLevel    `json:"level"`
}

// ToxicityView is the VPIN panel: the bars plus a constant reference line.
type ToxicityView struct {
	Points    []ToxicityPoint `json:"points"`
	Reference float64         `json:"reference"`
}

// Toxicity keeps only snapshots that carry vpin; the upstream omits it while
// warming up and those samples are skipped, not zero-filled.
func Toxicity(snaps []domain.Snapshot) ToxicityView {
	view := ToxicityView{
		Points:    make([]ToxicityPoint, 0, len(snaps)),
		Reference: ToxicityHighThreshold,
	}
	for _, s := range snaps {
		if s.VPIN == nil {
			continue
		}
		v := *s.VPIN
		view.Points = append(view.Points, ToxicityPoint{
			Timestamp: s.Timestamp,
			VPIN:      v,
			Level:     ClassifyVPIN(v),
		})
	}
	return view
}
