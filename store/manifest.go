package store

import (
	"encoding/json"
	"fmt"
	"os"
)

func marshalManifest(m *RunManifest) ([]byte, error) {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode run manifest: %w", err)
	}
	return raw, nil
}

// ReadManifest loads the run manifest from a finalized run directory.
func ReadManifest(path string) (*RunManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run manifest: %w", err)
	}
	var m RunManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse run manifest: %w", err)
	}
	return &m, nil
}
