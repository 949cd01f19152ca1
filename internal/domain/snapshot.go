package domain

import (
	"encoding/json"
	"fmt"
)

// Snapshot is one pre-computed order-book analytics frame from the upstream
// feed. Everything except Timestamp is optional: absent scalars are nil and
// absent sequences are nil slices. A snapshot is never modified after it has
// been decoded; the slices it carries must be treated as read-only.
type Snapshot struct {
	Timestamp       Timestamp    `json:"timestamp"`
	MidPrice        *float64     `json:"mid_price,omitempty"`
	Microprice      *float64     `json:"microprice,omitempty"`
	Spread          *float64     `json:"spread,omitempty"`
	OBI             *float64     `json:"obi,omitempty"`
	Divergence      *float64     `json:"divergence,omitempty"`
	Regime          *int         `json:"regime,omitempty"`
	RegimeLabel     string       `json:"regime_label,omitempty"`
	VPIN            *float64     `json:"vpin,omitempty"`
	DirectionalProb *float64     `json:"directional_prob,omitempty"`
	QBid            *float64     `json:"q_bid,omitempty"`
	QAsk            *float64     `json:"q_ask,omitempty"`
	Bids            []PriceLevel `json:"bids,omitempty"`
	Asks            []PriceLevel `json:"asks,omitempty"`
	Anomalies       []Anomaly    `json:"anomalies,omitempty"`

	// LiquidityGaps keeps nil (absent) and empty (present, no gaps) apart,
	// so it is encoded without omitempty.
	LiquidityGaps []LiquidityGap `json:"liquidity_gaps"`
}

// DecodeSnapshot parses one snapshot and checks the fields the dashboard
// cannot do without. The returned error wraps ErrMalformedFrame.
func DecodeSnapshot(raw []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Validate reports a missing timestamp as ErrMalformedFrame.
func (s Snapshot) Validate() error {
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedFrame)
	}
	return nil
}

// HasBook reports whether the snapshot carries any depth data.
func (s Snapshot) HasBook() bool {
	return len(s.Bids) > 0 || len(s.Asks) > 0
}

// Float returns a pointer to v. It keeps literal construction of optional
// fields short, mostly in tests and fixtures.
func Float(v float64) *float64 { return &v }
