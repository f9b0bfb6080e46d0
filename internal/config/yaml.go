package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// decodeStrict decodes a relaybot config file. YAML is converted to JSON
// first so both formats share one strict decoder: unknown keys and
// trailing documents are errors.
func decodeStrict(path string, b []byte, out *Config) error {
	jb, err := yamlToJSON(path, b)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("trailing data")
		}
		return err
	}
	return nil
}

func yamlToJSON(path string, b []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return b, nil
	}
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	v, err := stringKeys("", v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// stringKeys rejects non-string mapping keys. Every relaybot section and
// field is named, so a key like `1:` or `true:` is a typo, not data.
func stringKeys(at string, in any) (any, error) {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%s: key %v is not a string", where(at), k)
			}
			m[ks] = v
		}
		return stringKeys(at, m)
	case map[string]any:
		for k, v := range x {
			nv, err := stringKeys(join(at, k), v)
			if err != nil {
				return nil, err
			}
			x[k] = nv
		}
		return x, nil
	case []any:
		for i := range x {
			nv, err := stringKeys(fmt.Sprintf("%s[%d]", at, i), x[i])
			if err != nil {
				return nil, err
			}
			x[i] = nv
		}
		return x, nil
	default:
		return in, nil
	}
}

func join(at, k string) string {
	if at == "" {
		return k
	}
	return at + "." + k
}

func where(at string) string {
	if at == "" {
		return "top level"
	}
	return at
}
