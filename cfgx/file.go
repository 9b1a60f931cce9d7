package cfgx

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/erlorenz/go-prefs/internal/casing"
	"gopkg.in/yaml.v3"
)

// FileSource reads TOML (.toml) or YAML (.yaml, .yml) config files. Nested
// tables map to nested structs: the field Log.Level is read from
//
//	[log]
//	level = "debug"
//
// Keys are matched case-insensitively against the snake case struct path.
// The "key" tag overrides the dotted name. Arrays fill []string fields.
type FileSource struct {
	PriorityLevel int
	Paths         []string
}

// Priority implements [Source].
func (s *FileSource) Priority() int {
	return s.PriorityLevel
}

// Process implements [Source]. Missing files are skipped; later files
// override earlier ones.
func (s *FileSource) Process(fields map[string]ConfigField) error {
	values := map[string]string{}

	for _, path := range s.Paths {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("config file: %w", err)
		}

		doc, err := decodeFile(path, data)
		if err != nil {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		flatten("", doc, values)
	}

	var allErrs []error
	for path, field := range fields {
		key := casing.ToSnakePath(path)
		if tagVal, ok := field.Tag.Lookup(tagFileKey); ok {
			key = strings.ToLower(tagVal)
		}

		raw, ok := values[key]
		if !ok {
			continue
		}
		if err := setField(field, raw); err != nil {
			allErrs = append(allErrs, fmt.Errorf("config file key %s: %w", key, err))
		}
	}

	if len(allErrs) > 0 {
		return &MultiError{Errors: allErrs}
	}
	return nil
}

func decodeFile(path string, data []byte) (map[string]any, error) {
	doc := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported extension %q (want .toml, .yaml or .yml)", filepath.Ext(path))
	}
	return doc, nil
}

// flatten writes every scalar in doc to out under its lower-cased dotted path.
func flatten(prefix string, doc map[string]any, out map[string]string) {
	for k, v := range doc {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}

		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, len(val))
			for i, p := range val {
				parts[i] = fmt.Sprint(p)
			}
			out[key] = strings.Join(parts, ",")
		case nil:
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
