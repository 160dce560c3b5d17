// Package config loads the versioned scoring thresholds from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
)

// SourceDefaults names the compiled-in thresholds as a load source.
const SourceDefaults = "defaults"

// DefaultThresholdsPath is the XDG location consulted when no file is set.
func DefaultThresholdsPath() string {
	return filepath.Join(xdg.ConfigHome, "threshold", "thresholds.yaml")
}

// LoadThresholds reads thresholds from path, or from DefaultThresholdsPath
// when path is empty. Keys absent from the file keep their compiled
// defaults. A missing default file is not an error; a missing explicit file
// is. The second return value names the source used.
func LoadThresholds(path string) (*behavior.Thresholds, string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultThresholdsPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return behavior.DefaultThresholds(), SourceDefaults, nil
		}
		return nil, "", fmt.Errorf("reading thresholds: %w", err)
	}

	th, err := ParseThresholds(data)
	if err != nil {
		return nil, "", fmt.Errorf("parsing thresholds %s: %w", path, err)
	}
	return th, path, nil
}

// ParseThresholds overlays YAML onto the compiled defaults and validates the
// result. Unknown keys are rejected.
func ParseThresholds(data []byte) (*behavior.Thresholds, error) {
	th := behavior.DefaultThresholds()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(th); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := th.Validate(); err != nil {
		return nil, err
	}
	return th, nil
}

// EncodeThresholds renders thresholds as YAML.
func EncodeThresholds(th *behavior.Thresholds) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(th); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
