package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format represents the file format of a configuration document.
type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatTOML
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// detectFormat determines the file format based on extension or content.
func detectFormat(path string, content []byte) Format {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	}

	// Content sniffing for extensionless files
	return sniffFormat(content)
}

// sniffFormat attempts to detect format from content.
func sniffFormat(content []byte) Format {
	trimmed := strings.TrimSpace(string(content))

	// JSON starts with {
	if strings.HasPrefix(trimmed, "{") {
		return FormatJSON
	}

	// TOML uses key = value or [tables]; YAML uses key: value
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			return FormatTOML
		}
		// Whichever separator comes first decides.
		switch i := strings.IndexAny(line, "=:"); {
		case i < 0:
			continue
		case line[i] == '=':
			return FormatTOML
		default:
			return FormatYAML
		}
	}

	return FormatUnknown
}

// parse decodes a document into a generic key/value map.
func parse(content []byte, format Format) (map[string]any, error) {
	values := make(map[string]any)

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, &values); err != nil {
			return nil, fmt.Errorf("YAML parse error: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(content, &values); err != nil {
			return nil, fmt.Errorf("TOML parse error: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(content, &values); err != nil {
			return nil, fmt.Errorf("JSON parse error: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown file format")
	}

	// An empty YAML document decodes to a nil map.
	if values == nil {
		values = make(map[string]any)
	}
	return values, nil
}

// encode renders values in the given format.
func encode(values map[string]any, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("YAML encode error: %w", err)
		}
		return data, nil
	case FormatTOML:
		data, err := toml.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("TOML encode error: %w", err)
		}
		return data, nil
	case FormatJSON:
		data, err := json.MarshalIndent(values, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("JSON encode error: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown file format")
	}
}
