// Package projector derives panel-ready datasets from the snapshot history
// and the current selection. Every function here is pure: the same inputs
// always give the same output, and nothing is cached between calls.
// Numbers are returned at full precision; formatting belongs to renderers.
package projector

import (
	"github.com/alanyoungcy/lobwatch/internal/domain"
)

// PricePoint is one sample of the price panel. Mid and micro are drawn as two
// aligned lines and divergence as a filled sub-series; a nil field leaves a
// hole in that line.
type PricePoint struct {
	Timestamp  domain.Timestamp `json:"timestamp"`
	MidPrice   *float64         `json:"mid_price"`
	Microprice *float64         `json:"microprice"`
	Divergence *float64         `json:"divergence"`
}

// PriceSeries returns one point per snapshot in arrival order.
func PriceSeries(snaps []domain.Snapshot) []PricePoint {
	out := make([]PricePoint, len(snaps))
	for i, s := range snaps {
		out[i] = PricePoint{
			Timestamp:  s.Timestamp,
			MidPrice:   s.MidPrice,
			Microprice: s.Microprice,
			Divergence: s.Divergence,
		}
	}
	return out
}

// Feature selects a scalar feature panel.
type Feature string

const (
	FeatureImbalance Feature = "imbalance"
	FeatureSpread    Feature = "spread"
)

// AnomalyType returns the anomaly type whose presence marks a point on this
// feature's panel.
func (f Feature) AnomalyType() string {
	switch f {
	case FeatureImbalance:
		return domain.AnomalyHeavyImbalance
	case FeatureSpread:
		return domain.AnomalyLiquidityWithdrawal
	default:
		return ""
	}
}

func (f Feature) value(s domain.Snapshot) *float64 {
	switch f {
	case FeatureImbalance:
		return s.OBI
	case FeatureSpread:
		return s.Spread
	default:
		return nil
	}
}

// FeaturePoint is a (timestamp, value) pair on a scalar panel.
type FeaturePoint struct {
	Timestamp domain.Timestamp `json:"timestamp"`
	Value     float64          `json:"value"`
}

// FeatureMarker flags a point whose snapshot carries the matching anomaly.
type FeatureMarker struct {
	Timestamp domain.Timestamp `json:"timestamp"`
	Value     float64          `json:"value"`
	Index     int              `json:"index"` // position in the buffer
	Anomaly   domain.Anomaly   `json:"anomaly"`
}

// FeatureView is the dataset for the imbalance or spread panel.
type FeatureView struct {
	Feature Feature         `json:"feature"`
	Points  []FeaturePoint  `json:"points"`
	Markers []FeatureMarker `json:"markers"`
}

// FeatureSeries projects one scalar feature. Snapshots without the value are
// skipped. Markers are filtered from the same points, never recomputed.
func FeatureSeries(snaps []domain.Snapshot, f Feature) FeatureView {
	view := FeatureView{
		Feature: f,
		Points:  make([]FeaturePoint, 0, len(snaps)),
		Markers: []FeatureMarker{},
	}
	kind := f.AnomalyType()

	for i, s := range snaps {
		v := f.value(s)
		if v == nil {
			continue
		}
		view.Points = append(view.Points, FeaturePoint{Timestamp: s.Timestamp, Value: *v})

		if kind == "" {
			continue
		}
		for _, a := range s.Anomalies {
			if a.Is(kind) {
				view.Markers = append(view.Markers, FeatureMarker{
					Timestamp: s.Timestamp,
					Value:     *v,
					Index:     i,
					Anomaly:   a,
				})
				break
			}
		}
	}
	return view
}
