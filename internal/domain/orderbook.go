package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PriceLevel is a single price+volume entry in an orderbook. On the wire it is
// a two-element array: [price, volume].
type PriceLevel struct {
	Price  float64
	Volume float64
}

// UnmarshalJSON decodes a [price, volume] pair. Extra trailing elements are
// ignored; fewer than two is an error.
func (p *PriceLevel) UnmarshalJSON(b []byte) error {
	var pair []float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("price level: %w", err)
	}
	if len(pair) < 2 {
		return fmt.Errorf("price level: want [price, volume], got %d element(s)", len(pair))
	}
	p.Price, p.Volume = pair[0], pair[1]
	return nil
}

// MarshalJSON encodes the level back into its [price, volume] form.
func (p PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Price, p.Volume})
}

// Side identifies the book side a liquidity gap sits on.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Severity is the ordered anomaly severity: info < medium < high < critical.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// ParseSeverity maps an upstream severity tag to a Severity. Unknown tags
// (including "low") map to SeverityInfo.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// UnmarshalJSON implements json.Unmarshaler for the string form.
func (s *Severity) UnmarshalJSON(b []byte) error {
	var tag string
	if err := json.Unmarshal(b, &tag); err != nil {
		return fmt.Errorf("severity: %w", err)
	}
	*s = ParseSeverity(tag)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Well-known anomaly types, in normalised form.
const (
	AnomalyHeavyImbalance      = "heavy-imbalance"
	AnomalyLiquidityWithdrawal = "liquidity-withdrawal"
)

// Anomaly is an upstream-detected condition attached to a snapshot.
type Anomaly struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// NormalizeAnomalyType lower-cases a type tag and folds '_' into '-', so that
// "HEAVY_IMBALANCE" and "heavy-imbalance" compare equal.
func NormalizeAnomalyType(t string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(t)), "_", "-")
}

// Is reports whether the anomaly is of the given type.
func (a Anomaly) Is(kind string) bool {
	return NormalizeAnomalyType(a.Type) == NormalizeAnomalyType(kind)
}

// LiquidityGap is a depth level with abnormally thin resting volume.
type LiquidityGap struct {
	Price           float64 `json:"price"`
	Side            Side    `json:"side"`
	Level           int     `json:"level"`
	Volume          float64 `json:"volume"`
	RiskScore       float64 `json:"risk_score"`
	DistanceFromMid float64 `json:"distance_from_mid"`
}

// Timestamp is a snapshot instant. Upstream producers send either Unix
// milliseconds as a JSON number or an ISO-8601 string (with or without zone).
type Timestamp struct {
	time.Time
}

// zone-less layouts are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// TimestampMillis builds a Timestamp from Unix milliseconds.
func TimestampMillis(ms int64) Timestamp {
	return Timestamp{Time: time.UnixMilli(ms).UTC()}
}

// UnmarshalJSON accepts a number (Unix ms) or a string. null leaves the value
// untouched, which callers treat as "absent".
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed.UTC()
				return nil
			}
		}
		return fmt.Errorf("timestamp: unrecognised format %q", s)
	}

	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if whole := int64(ms); float64(whole) == ms {
		*t = TimestampMillis(whole)
		return nil
	}
	t.Time = time.UnixMicro(int64(ms * 1000)).UTC()
	return nil
}

// MarshalJSON encodes the instant as an RFC 3339 string.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// Equal reports whether both timestamps denote the same instant.
func (t Timestamp) Equal(o Timestamp) bool {
	return t.Time.Equal(o.Time)
}
