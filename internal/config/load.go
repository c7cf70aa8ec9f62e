package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadToolDirectory reads every *.json file directly under dir as a
// ToolConfig, keyed by its declared name. A duplicate tool name across two
// files is an error — tool names must be unique regardless of which file
// declares them.
func LoadToolDirectory(dir string) (map[string]*ToolConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("config: read tools directory %s: %w", dir, err)
	}

	tools := make(map[string]*ToolConfig)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}

		var tc ToolConfig
		if err := json.Unmarshal(data, &tc); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if tc.Name == "" {
			return nil, fmt.Errorf("config: %s: tool name must not be empty", path)
		}
		if _, ok := tools[tc.Name]; ok {
			return nil, fmt.Errorf("config: duplicate tool name %q declared in %s", tc.Name, path)
		}
		tools[tc.Name] = &tc
	}
	return tools, nil
}
