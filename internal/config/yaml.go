package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toStrictJSON returns data ready for the strict JSON decoder. Files with
// a .yaml/.yml extension are decoded and re-marshaled as JSON first, so
// DisallowUnknownFields catches typos in either format.
func toStrictJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	out, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("yaml to json: %w", err)
	}
	return out, nil
}

// stringifyKeys rewrites yaml's map[any]any nodes into map[string]any,
// which json.Marshal requires.
func stringifyKeys(node any) any {
	switch n := node.(type) {
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[fmt.Sprint(k)] = stringifyKeys(v)
		}
		return out
	case map[string]any:
		for k, v := range n {
			n[k] = stringifyKeys(v)
		}
		return n
	case []any:
		for i, v := range n {
			n[i] = stringifyKeys(v)
		}
		return n
	}
	return node
}
