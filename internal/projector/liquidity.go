package projector

import (
	"fmt"
	"math"
	"strconv"

	"github.com/alanyoungcy/lobwatch/internal/domain"
)

// Fixed overlay geometry. The axes are not rescaled per snapshot so the panel
// does not jitter between frames.
const (
	DefaultMidPrice = 100.0
	PriceHalfRange  = 1.0
	VolumeAxisLimit = 3000.0

	// ThinVolume flags a book level as thin on the bar chart.
	ThinVolume = 50.0

	// gap markers sit at ±10% of the volume axis, by side.
	markerOffset = 0.1

	RiskMin = 0.0
	RiskMax = 100.0

	// GapMatchTolerance is how close a hovered price must be to a gap.
	GapMatchTolerance = 0.01
)

// DisplayFallback carries the last mid-price seen, so the overlay keeps a
// stable axis when the selected snapshot has none. It is plain data owned by
// the caller and passed in alongside the buffer.
type DisplayFallback struct {
	LastMidPrice *float64 `json:"last_mid_price,omitempty"`
}

// MidPrice picks the snapshot mid, then the fallback, then DefaultMidPrice.
func (f DisplayFallback) MidPrice(s *domain.Snapshot) float64 {
	if s != nil && s.MidPrice != nil {
		return *s.MidPrice
	}
	if f.LastMidPrice != nil {
		return *f.LastMidPrice
	}
	return DefaultMidPrice
}

// Observe returns the fallback to use after rendering s.
func (f DisplayFallback) Observe(s *domain.Snapshot) DisplayFallback {
	if s == nil || s.MidPrice == nil {
		return f
	}
	mid := *s.MidPrice
	return DisplayFallback{LastMidPrice: &mid}
}

// Range is a closed axis interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Bar is one horizontal volume bar. Bid volumes are negative (mirrored left).
type Bar struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Raw    float64 `json:"raw"`
	Thin   bool    `json:"thin"`
}

// RiskBand is the coarse reading of a gap risk score.
type RiskBand string

const (
	RiskLow    RiskBand = "low"
	RiskMedium RiskBand = "medium"
	RiskHigh   RiskBand = "high"
)

// ClassifyRisk bands a risk score: > 50 high, > 25 medium, otherwise low.
func ClassifyRisk(score float64) RiskBand {
	switch {
	case score > 50:
		return RiskHigh
	case score > 25:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ColorStop is a point on the risk colour scale. Position is in [0, 1].
type ColorStop struct {
	Position float64 `json:"position"`
	R        uint8   `json:"r"`
	G        uint8   `json:"g"`
	B        uint8   `json:"b"`
	A        float64 `json:"a"`
}

// RiskColorScale maps risk 0 → low (green), 50 → medium (amber), 100 → high
// (red).
var RiskColorScale = [3]ColorStop{
	{Position: 0, R: 16, G: 185, B: 129, A: 0.8},
	{Position: 0.5, R: 245, G: 158, B: 11, A: 0.8},
	{Position: 1, R: 239, G: 68, B: 68, A: 0.8},
}

// ClampRisk limits a risk score to [RiskMin, RiskMax]. NaN clamps to RiskMin.
func ClampRisk(score float64) float64 {
	if math.IsNaN(score) || score < RiskMin {
		return RiskMin
	}
	if score > RiskMax {
		return RiskMax
	}
	return score
}

// RiskColor interpolates RiskColorScale at the clamped score and returns a
// CSS rgba() string.
func RiskColor(score float64) string {
	p := ClampRisk(score) / RiskMax

	lo, hi := RiskColorScale[0], RiskColorScale[len(RiskColorScale)-1]
	for i := 1; i < len(RiskColorScale); i++ {
		if p <= RiskColorScale[i].Position {
			lo, hi = RiskColorScale[i-1], RiskColorScale[i]
			break
		}
	}

	t := 0.0
	if span := hi.Position - lo.Position; span > 0 {
		t = (p - lo.Position) / span
	}
	lerp := func(a, b uint8) int {
		return int(math.Round(float64(a) + t*(float64(b)-float64(a))))
	}
	alpha := lo.A + t*(hi.A-lo.A)
	return fmt.Sprintf("rgba(%d, %d, %d, %s)",
		lerp(lo.R, hi.R), lerp(lo.G, hi.G), lerp(lo.B, hi.B),
		strconv.FormatFloat(alpha, 'f', -1, 64))
}

// MarkerSize is 8 + risk/10, kept within [10, 16].
func MarkerSize(score float64) float64 {
	return math.Max(10, math.Min(16, 8+ClampRisk(score)/10))
}

// GapMarker is one point on the gap overlay. The placeholder marker is
// invisible (Opacity 0, Size 0) and exists only to keep the colour scale and
// legend on screen.
type GapMarker struct {
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	Side        domain.Side `json:"side,omitempty"`
	Level       int         `json:"level,omitempty"`
	Volume      float64     `json:"volume"`
	RiskScore   float64     `json:"risk_score"`
	Band        RiskBand    `json:"band"`
	Color       string      `json:"color"`
	Size        float64     `json:"size"`
	Opacity     float64     `json:"opacity"`
	Placeholder bool        `json:"placeholder"`
}

// Overlay is the liquidity-gap panel for the selected snapshot.
type Overlay struct {
	HasSnapshot bool        `json:"has_snapshot"`
	MidPrice    float64     `json:"mid_price"`
	PriceRange  Range       `json:"price_range"`
	VolumeRange Range       `json:"volume_range"`
	ColorRange  Range       `json:"color_range"`
	ColorScale  []ColorStop `json:"color_scale"`
	BidBars     []Bar       `json:"bid_bars"`
	AskBars     []Bar       `json:"ask_bars"`
	// GapsPresent is false when the snapshot carried no liquidity_gaps field
	// at all; Markers is then empty.
	GapsPresent bool        `json:"gaps_present"`
	Markers     []GapMarker `json:"markers"`
}

// LiquidityOverlay builds the overlay for the selected snapshot, or an empty
// frame around the fallback mid when nothing is selected. A present but
// empty gap list still yields one placeholder marker.
func LiquidityOverlay(s *domain.Snapshot, fb DisplayFallback) Overlay {
	mid := fb.MidPrice(s)
	ov := Overlay{
		HasSnapshot: s != nil,
		MidPrice:    mid,
		PriceRange:  Range{Min: mid - PriceHalfRange, Max: mid + PriceHalfRange},
		VolumeRange: Range{Min: -VolumeAxisLimit, Max: VolumeAxisLimit},
		ColorRange:  Range{Min: RiskMin, Max: RiskMax},
		ColorScale:  RiskColorScale[:],
		BidBars:     []Bar{},
		AskBars:     []Bar{},
		Markers:     []GapMarker{},
	}
	if s == nil {
		return ov
	}

	for _, lvl := range s.Bids {
		ov.BidBars = append(ov.BidBars, Bar{
			Price:  lvl.Price,
			Volume: -lvl.Volume,
			Raw:    lvl.Volume,
			Thin:   math.Abs(lvl.Volume) < ThinVolume,
		})
	}
	for _, lvl := range s.Asks {
		ov.AskBars = append(ov.AskBars, Bar{
			Price:  lvl.Price,
			Volume: lvl.Volume,
			Raw:    lvl.Volume,
			Thin:   math.Abs(lvl.Volume) < ThinVolume,
		})
	}

	if s.LiquidityGaps == nil {
		return ov
	}
	ov.GapsPresent = true

	if len(s.LiquidityGaps) == 0 {
		ov.Markers = append(ov.Markers, GapMarker{
			X:           0,
			Y:           mid,
			RiskScore:   RiskMin,
			Band:        RiskLow,
			Color:       RiskColor(RiskMin),
			Size:        0,
			Opacity:     0,
			Placeholder: true,
		})
		return ov
	}

	for _, g := range s.LiquidityGaps {
		x := ov.VolumeRange.Max * markerOffset
		if g.Side == domain.SideBid {
			x = ov.VolumeRange.Min * markerOffset
		}
		risk := ClampRisk(g.RiskScore)
		ov.Markers = append(ov.Markers, GapMarker{
			X:         x,
			Y:         g.Price,
			Side:      g.Side,
			Level:     g.Level,
			Volume:    g.Volume,
			RiskScore: risk,
			Band:      ClassifyRisk(risk),
			Color:     RiskColor(risk),
			Size:      MarkerSize(risk),
			Opacity:   1,
		})
	}
	return ov
}

// GapAt finds the gap of s lying within GapMatchTolerance of price.
func GapAt(s domain.Snapshot, price float64) (domain.LiquidityGap, bool) {
	for _, g := range s.LiquidityGaps {
		if math.Abs(g.Price-price) < GapMatchTolerance {
			return g, true
		}
	}
	return domain.LiquidityGap{}, false
}

// maxSummaryGaps bounds GapSummary.Top.
const maxSummaryGaps = 3

// GapSummary backs the "critical gaps" box under the overlay.
type GapSummary struct {
	Count int                   `json:"count"`
	Top   []domain.LiquidityGap `json:"top"`
}

// SummarizeGaps reports the gap count and the first few gaps in upstream
// order.
func SummarizeGaps(s *domain.Snapshot) GapSummary {
	sum := GapSummary{Top: []domain.LiquidityGap{}}
	if s == nil {
		return sum
	}
	sum.Count = len(s.LiquidityGaps)
	n := min(sum.Count, maxSummaryGaps)
	sum.Top = append(sum.Top, s.LiquidityGaps[:n]...)
	return sum
}
