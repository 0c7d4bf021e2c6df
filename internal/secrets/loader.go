package secrets

import (
	"errors"
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvLoader returns a Loader that reads the specified environment variables.
// Missing variables are silently omitted from the result map.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// FileLoader returns a Loader that reads a flat YAML map of key: value
// pairs, such as a mounted secret file. A missing file yields no values.
func FileLoader(path string) Loader {
	return func() (map[string]string, error) {
		vals := map[string]string{}
		if path == "" {
			return vals, nil
		}
		data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied path
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return vals, nil
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &vals); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return vals, nil
	}
}

// StaticLoader returns fixed values, skipping empty ones.
func StaticLoader(vals map[string]string) Loader {
	return func() (map[string]string, error) {
		out := make(map[string]string, len(vals))
		for k, v := range vals {
			if v != "" {
				out[k] = v
			}
		}
		return out, nil
	}
}

// Merge runs the loaders in order; later loaders override earlier ones.
func Merge(loaders ...Loader) Loader {
	return func() (map[string]string, error) {
		out := map[string]string{}
		for _, l := range loaders {
			vals, err := l()
			if err != nil {
				return nil, err
			}
			maps.Copy(out, vals)
		}
		return out, nil
	}
}
