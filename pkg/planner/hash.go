package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gowebpki/jcs"
	"gopkg.in/yaml.v3"
)

// HashFile computes the canonical digest of a runbook file. The YAML
// is normalised to canonical JSON (RFC 8785) before hashing so that
// formatting-only edits do not invalidate a resume.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read runbook %s: %w", path, err)
	}
	return HashRunbook(data)
}

// HashRunbook computes the canonical digest of runbook YAML bytes.
func HashRunbook(data []byte) (string, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("hash runbook: %w", err)
	}
	raw, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return "", fmt.Errorf("hash runbook: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("hash runbook: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// stringKeys converts YAML decoder output into a JSON-marshalable
// shape (map keys forced to strings).
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = stringKeys(val)
		}
		return out
	case map[any]any:
		converted := make(map[string]any, len(t))
		for k, val := range t {
			converted[fmt.Sprint(k)] = stringKeys(val)
		}
		return converted
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stringKeys(val)
		}
		return out
	default:
		return v
	}
}
