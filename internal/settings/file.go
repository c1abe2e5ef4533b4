package settings

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"backupnow/internal/sysdirs"
)

// DefaultFileName is the settings file name used in the working
// directory and under the per-user data directory.
const DefaultFileName = "backupnow.json"

// Resolve returns the settings path to use. An explicit override wins
// unconditionally. Otherwise the search order is
// backupnow-<hostname>.json, backupnow.json (both in the working
// directory), then the per-user default; the first existing file wins
// and the default path is returned (exists=false) when none do.
func Resolve(override string) (path string, exists bool, err error) {
	if override != "" {
		_, statErr := os.Stat(override)
		return override, statErr == nil, nil
	}

	candidates := []string{DefaultFileName}
	if host, hostErr := os.Hostname(); hostErr == nil && host != "" {
		candidates = []string{
			fmt.Sprintf("backupnow-%s.json", host),
			DefaultFileName,
		}
	}
	for _, candidate := range candidates {
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}

	fallback, err := sysdirs.AppData("settings.json")
	if err != nil {
		return "", false, err
	}
	if info, statErr := os.Stat(fallback); statErr == nil && !info.IsDir() {
		return fallback, true, nil
	}
	return fallback, false, nil
}

// Load reads path into the document, replacing its contents and
// recording the path. YAML files are coerced to JSON first so both
// formats share one decoder.
func (d *Document) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading settings: %w", err)
	}
	jsonBytes, err := coerceToJSONBytes(path, raw)
	if err != nil {
		return fmt.Errorf("settings %s: %w", path, err)
	}

	var data map[string]any
	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return fmt.Errorf("settings %s: %w", path, err)
	}
	d.data = data
	d.path = path
	d.contentHash.Store(hashBytes(raw))
	d.log.Debug().Str("path", path).Int("keys", len(data)).Msg("settings loaded")
	return nil
}

// Save writes the document to its path atomically (temp file in the
// same directory, then rename). The format follows the path extension:
// YAML for .yaml/.yml, JSON otherwise.
func (d *Document) Save() error {
	if d.path == "" {
		return fmt.Errorf("settings document has no path")
	}

	var (
		raw []byte
		err error
	)
	ext := strings.ToLower(filepath.Ext(d.path))
	if ext == ".yaml" || ext == ".yml" {
		raw, err = yaml.Marshal(d.data)
	} else {
		raw, err = json.MarshalIndent(d.data, "", "  ")
		raw = append(raw, '\n')
	}
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp settings file: %w", err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing settings file: %w", err)
	}
	d.contentHash.Store(hashBytes(raw))
	d.log.Debug().Str("path", d.path).Msg("settings saved")
	return nil
}

// coerceToJSONBytes converts YAML settings to JSON bytes so both
// formats share the JSON decode path.
func coerceToJSONBytes(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	v = normalizeYAML(v)
	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// normalizeYAML ensures all map keys are strings so the result can be
// JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}
