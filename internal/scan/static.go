package scan

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aristath/optionscout/pkg/embedded"
)

// embeddedDatasetPath is where the bundled last-known-good dataset lives
// inside the binary.
const embeddedDatasetPath = "fallback/opportunities.json"

// StaticDataset is the last-resort data source: a bundled (or on-disk)
// document of raw opportunity records that runs through the same
// normalizer/ranker path as live engine output.
type StaticDataset struct {
	Records        []map[string]any
	TotalEvaluated int
}

// LoadStaticDataset reads the fallback dataset. A non-empty overridePath
// takes precedence over the embedded copy; the embedded copy ships with
// the binary so the static tier works with zero configuration.
func LoadStaticDataset(overridePath string) (*StaticDataset, error) {
	var raw []byte
	var err error

	if overridePath != "" {
		raw, err = os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read fallback dataset %s: %w", overridePath, err)
		}
	} else {
		raw, err = embedded.Files.ReadFile(embeddedDatasetPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded fallback dataset: %w", err)
		}
	}

	records, total, ok := DecodeOpportunities(json.RawMessage(raw))
	if !ok {
		return nil, fmt.Errorf("fallback dataset is not a valid opportunity document")
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("fallback dataset contains no opportunities")
	}

	return &StaticDataset{Records: records, TotalEvaluated: total}, nil
}
