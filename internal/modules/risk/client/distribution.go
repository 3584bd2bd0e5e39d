package client

import (
	"bytes"
	"encoding/json"
	"fmt"

	"air-pollution-dashboard/internal/modules/risk/types"
)

// orderedDistribution decodes a JSON object of label→percent while keeping
// the key order of the document.
type orderedDistribution []types.DistributionEntry

func (d *orderedDistribution) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("risk_distribution: expected object, got %v", tok)
	}
	out := orderedDistribution{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("risk_distribution: unexpected key %v", keyTok)
		}
		var v float64
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("risk_distribution[%s]: %w", key, err)
		}
		out = append(out, types.DistributionEntry{Label: key, Percent: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}
