package projector

import (
	"github.com/alanyoungcy/lobwatch/internal/domain"
	"github.com/alanyoungcy/lobwatch/internal/selection"
)

// Panel names accepted by Views.Panel.
const (
	PanelPrice     = "price"
	PanelImbalance = "imbalance"
	PanelSpread    = "spread"
	PanelHeatmap   = "heatmap"
	PanelLiquidity = "liquidity"
	PanelToxicity  = "toxicity"
	PanelInspector = "inspector"
	PanelLadder    = "ladder"
	PanelSignals   = "signals"
	PanelTimeline  = "timeline"
)

// PanelNames lists every panel in display order.
var PanelNames = []string{
	PanelPrice, PanelImbalance, PanelSpread, PanelHeatmap, PanelLiquidity,
	PanelToxicity, PanelInspector, PanelLadder, PanelSignals, PanelTimeline,
}

// LiquidityPanel pairs the overlay with its summary box.
type LiquidityPanel struct {
	Overlay
	Summary GapSummary `json:"summary"`
}

// Views is every panel dataset computed from one consistent read of the
// buffer and the selection. Values are never mutated after Project returns.
type Views struct {
	Live      bool            `json:"live"`
	BufferLen int             `json:"buffer_len"`
	Price     []PricePoint    `json:"price"`
	Imbalance FeatureView     `json:"imbalance"`
	Spread    FeatureView     `json:"spread"`
	Heatmap   HeatmapGrid     `json:"heatmap"`
	Liquidity LiquidityPanel  `json:"liquidity"`
	Toxicity  ToxicityView    `json:"toxicity"`
	Inspector InspectorView   `json:"inspector"`
	Ladder    LadderView      `json:"ladder"`
	Signals   []Signal        `json:"signals"`
	Timeline  []TimelineEntry `json:"timeline"`
}

// Project computes all panels. snaps is the buffer contents in arrival order;
// resolved is the selection outcome, or nil when there is nothing to show.
func Project(snaps []domain.Snapshot, resolved *selection.Resolved, fb DisplayFallback) Views {
	var selected *domain.Snapshot
	live := true
	if resolved != nil {
		s := resolved.Snapshot
		selected = &s
		live = resolved.State == selection.Live
	}

	return Views{
		Live:      live,
		BufferLen: len(snaps),
		Price:     PriceSeries(snaps),
		Imbalance: FeatureSeries(snaps, FeatureImbalance),
		Spread:    FeatureSeries(snaps, FeatureSpread),
		Heatmap:   Heatmap(snaps),
		Liquidity: LiquidityPanel{
			Overlay: LiquidityOverlay(selected, fb),
			Summary: SummarizeGaps(selected),
		},
		Toxicity:  Toxicity(snaps),
		Inspector: Inspect(resolved),
		Ladder:    Ladder(selected, LadderDepth),
		Signals:   Signals(selected),
		Timeline:  AnomalyTimeline(snaps),
	}
}

// Panel returns one panel by name.
func (v *Views) Panel(name string) (any, bool) {
	switch name {
	case PanelPrice:
		return v.Price, true
	case PanelImbalance:
		return v.Imbalance, true
	case PanelSpread:
		return v.Spread, true
	case PanelHeatmap:
		return v.Heatmap, true
	case PanelLiquidity:
		return v.Liquidity, true
	case PanelToxicity:
		return v.Toxicity, true
	case PanelInspector:
		return v.Inspector, true
	case PanelLadder:
		return v.Ladder, true
	case PanelSignals:
		return v.Signals, true
	case PanelTimeline:
		return v.Timeline, true
	default:
		return nil, false
	}
}
