package review

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

const (
	// ledgerPrefix and ledgerSuffix delimit the hidden cost ledger marker
	// embedded in summary comment bodies. The marker is invisible in
	// rendered markdown but survives round-trips through the comment API.
	ledgerPrefix = "<!-- reviewloop:cost-ledger "
	ledgerSuffix = " -->"
)

// ledgerPattern matches the first cost ledger marker in a comment body.
// The payload never contains a newline because Serialize emits compact JSON.
var ledgerPattern = regexp.MustCompile(`<!-- reviewloop:cost-ledger (\{.*?\}) -->`)

// CostEntry records the estimated cost of one review run.
type CostEntry struct {
	ID        string    `json:"id"`
	Cost      float64   `json:"cost"`
	Timestamp time.Time `json:"timestamp"`
}

// CostLedger is the cumulative cost record for one pull request, oldest
// entry first. TotalCost always equals the sum of entry costs.
type CostLedger struct {
	Reviews   []CostEntry `json:"reviews"`
	TotalCost float64     `json:"total_cost"`
}

// Append returns a new ledger with an entry added and the total recomputed.
func (l CostLedger) Append(entry CostEntry) CostLedger {
	reviews := make([]CostEntry, 0, len(l.Reviews)+1)
	reviews = append(reviews, l.Reviews...)
	reviews = append(reviews, entry)

	var total float64
	for _, r := range reviews {
		total += r.Cost
	}

	return CostLedger{Reviews: reviews, TotalCost: total}
}

// Serialize encodes the ledger as a single-line hidden marker.
func (l CostLedger) Serialize() string {
	if l.Reviews == nil {
		l.Reviews = []CostEntry{}
	}
	payload, err := json.Marshal(l)
	if err != nil {
		// CostLedger contains only marshalable types; this cannot happen.
		payload = []byte(`{"reviews":[],"total_cost":0}`)
	}
	return fmt.Sprintf("%s%s%s", ledgerPrefix, payload, ledgerSuffix)
}

// ParseLedger scans text for a cost ledger marker and decodes it.
// It returns ok=false when no marker is present or the payload is
// malformed in any way: a ledger is reconstructed only from a
// well-formed marker, and corruption resets the cumulative cost
// instead of failing the run.
func ParseLedger(text string) (CostLedger, bool) {
	match := ledgerPattern.FindStringSubmatch(text)
	if match == nil {
		return CostLedger{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(match[1]), &fields); err != nil {
		return CostLedger{}, false
	}

	rawReviews, ok := fields["reviews"]
	if !ok {
		return CostLedger{}, false
	}
	var reviews []CostEntry
	if err := json.Unmarshal(rawReviews, &reviews); err != nil {
		return CostLedger{}, false
	}

	rawTotal, ok := fields["total_cost"]
	if !ok {
		return CostLedger{}, false
	}
	var total float64
	if err := json.Unmarshal(rawTotal, &total); err != nil {
		return CostLedger{}, false
	}

	return CostLedger{Reviews: reviews, TotalCost: total}, true
}
