package projector

import (
	"github.com/alanyoungcy/lobwatch/internal/domain"
	"github.com/alanyoungcy/lobwatch/internal/selection"
)

// AlertLevel summarises the anomalies of the inspected snapshot.
type AlertLevel string

const (
	AlertNone     AlertLevel = "none"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// AlertFor returns critical when any anomaly is high or worse, warning when
// there is at least one anomaly, and none otherwise.
func AlertFor(anoms []domain.Anomaly) AlertLevel {
	level := AlertNone
	for _, a := range anoms {
		if a.Severity >= domain.SeverityHigh {
			return AlertCritical
		}
		level = AlertWarning
	}
	return level
}

// InspectorView is the detail card for the selected snapshot.
type InspectorView struct {
	HasSnapshot     bool                 `json:"has_snapshot"`
	State           string               `json:"state"`
	Timestamp       domain.Timestamp     `json:"timestamp"`
	MidPrice        *float64             `json:"mid_price"`
	Spread          *float64             `json:"spread"`
	OBI             *float64             `json:"obi"`
	QBid            *float64             `json:"q_bid"`
	QAsk            *float64             `json:"q_ask"`
	Regime          *int                 `json:"regime"`
	RegimeLabel     string               `json:"regime_label,omitempty"`
	DirectionalProb *float64             `json:"directional_prob"`
	Anomalies       []domain.Anomaly     `json:"anomalies"`
	Alert           AlertLevel           `json:"alert"`
	HoveredGap      *domain.LiquidityGap `json:"hovered_gap,omitempty"`
}

// Inspect renders the inspector card. A nil resolved value yields an empty
// card in the live state.
func Inspect(r *selection.Resolved) InspectorView {
	if r == nil {
		return InspectorView{
			State:     selection.Live.String(),
			Anomalies: []domain.Anomaly{},
			Alert:     AlertNone,
		}
	}
	s := r.Snapshot
	anoms := s.Anomalies
	if anoms == nil {
		anoms = []domain.Anomaly{}
	}
	return InspectorView{
		HasSnapshot:     true,
		State:           r.State.String(),
		Timestamp:       s.Timestamp,
		MidPrice:        s.MidPrice,
		Spread:          s.Spread,
		OBI:             s.OBI,
		QBid:            s.QBid,
		QAsk:            s.QAsk,
		Regime:          s.Regime,
		RegimeLabel:     s.RegimeLabel,
		DirectionalProb: s.DirectionalProb,
		Anomalies:       anoms,
		Alert:           AlertFor(s.Anomalies),
		HoveredGap:      r.HoveredGap,
	}
}

// LadderDepth is the number of rows per side in the order-book ladder.
const LadderDepth = 10

// LadderRow is one level of the ladder.
type LadderRow struct {
	Level  int     `json:"level"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// LadderView is the two-sided depth table, best level first on both sides.
type LadderView struct {
	Bids []LadderRow `json:"bids"`
	Asks []LadderRow `json:"asks"`
}

// Ladder returns the top depth levels of each side of s.
func Ladder(s *domain.Snapshot, depth int) LadderView {
	view := LadderView{Bids: []LadderRow{}, Asks: []LadderRow{}}
	if s == nil || depth <= 0 {
		return view
	}
	view.Bids = ladderSide(s.Bids, depth)
	view.Asks = ladderSide(s.Asks, depth)
	return view
}

func ladderSide(levels []domain.PriceLevel, depth int) []LadderRow {
	n := min(len(levels), depth)
	rows := make([]LadderRow, n)
	for i := 0; i < n; i++ {
		rows[i] = LadderRow{Level: i + 1, Price: levels[i].Price, Volume: levels[i].Volume}
	}
	return rows
}

// Signal is one row of the signal monitor.
type Signal struct {
	Type     string          `json:"type"`
	Severity domain.Severity `json:"severity"`
	Message  string          `json:"message"`
	Color    string          `json:"color"`
}

// SeverityColor returns the monitor colour for a severity.
func SeverityColor(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return "#ef4444"
	case domain.SeverityHigh:
		return "#f97316"
	case domain.SeverityMedium:
		return "#eab308"
	default:
		return "#3b82f6"
	}
}

// Signals lists the anomalies of s in upstream order.
func Signals(s *domain.Snapshot) []Signal {
	out := []Signal{}
	if s == nil {
		return out
	}
	for _, a := range s.Anomalies {
		out = append(out, Signal{
			Type:     a.Type,
			Severity: a.Severity,
			Message:  a.Message,
			Color:    SeverityColor(a.Severity),
		})
	}
	return out
}

// TimelineEntry is one anomaly occurrence across the buffer.
type TimelineEntry struct {
	Timestamp domain.Timestamp `json:"timestamp"`
	Index     int              `json:"index"`
	Type      string           `json:"type"`
	Severity  domain.Severity  `json:"severity"`
	Message   string           `json:"message"`
}

// AnomalyTimeline flattens every anomaly of every snapshot, oldest first.
func AnomalyTimeline(snaps []domain.Snapshot) []TimelineEntry {
	out := []TimelineEntry{}
	for i, s := range snaps {
		for _, a := range s.Anomalies {
			out = append(out, TimelineEntry{
				Timestamp: s.Timestamp,
				Index:     i,
				Type:      a.Type,
				Severity:  a.Severity,
				Message:   a.Message,
			})
		}
	}
	return out
}
