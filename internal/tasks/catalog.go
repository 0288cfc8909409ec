package tasks

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk YAML layout of a task catalog.
//
//	tasks:
//	  - id: plumber
//	    name: Book Plumber
//	    description: Find and book plumbers for home repairs
//	    keywords: [plumber, leak, drain]
//	    tools: [web_search, remember_preference]
type catalogFile struct {
	Tasks []catalogTask `yaml:"tasks"`
}

type catalogTask struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	Keywords     []string       `yaml:"keywords"`
	Category     string         `yaml:"category"`
	Enabled      *bool          `yaml:"enabled"`
	Icon         string         `yaml:"icon"`
	Color        string         `yaml:"color"`
	SystemPrompt string         `yaml:"system_prompt"`
	Model        string         `yaml:"model"`
	Tools        []string       `yaml:"tools"`
	Metadata     map[string]any `yaml:"metadata"`
}

// ParseCatalog decodes YAML catalog bytes into task definitions.
// Handlers and tool sets are bound by the caller.
func ParseCatalog(data []byte, source string) ([]*TaskDefinition, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", source, err)
	}

	defs := make([]*TaskDefinition, 0, len(file.Tasks))
	for i, t := range file.Tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("parse catalog %s: task #%d has no id", source, i)
		}
		enabled := t.Enabled == nil || *t.Enabled
		name := t.Name
		if name == "" {
			name = t.ID
		}
		defs = append(defs, &TaskDefinition{
			ID:           t.ID,
			DisplayName:  name,
			Description:  t.Description,
			Keywords:     t.Keywords,
			Category:     t.Category,
			Enabled:      enabled,
			Icon:         t.Icon,
			Color:        t.Color,
			SystemPrompt: t.SystemPrompt,
			Model:        t.Model,
			ToolNames:    t.Tools,
			Metadata:     t.Metadata,
			Source:       source,
		})
	}
	return defs, nil
}

// LoadCatalog reads one YAML catalog file.
func LoadCatalog(path string) ([]*TaskDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data, path)
}

// LoadDirs loads every catalog matching pattern under each dir, in dir order
// then lexical path order. Missing dirs are skipped; unreadable or invalid
// files are logged and skipped.
func LoadDirs(dirs []string, pattern string) ([]*TaskDefinition, error) {
	if pattern == "" {
		pattern = "**/*.yaml"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid catalog pattern %q", pattern)
	}

	var all []*TaskDefinition
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			slog.Debug("task catalog directory not found, skipping", "dir", dir)
			continue
		}

		matches, err := doublestar.Glob(os.DirFS(dir), pattern)
		if err != nil {
			return nil, fmt.Errorf("glob catalogs in %s: %w", dir, err)
		}
		sort.Strings(matches)

		for _, rel := range matches {
			path := filepath.Join(dir, filepath.FromSlash(rel))
			defs, err := LoadCatalog(path)
			if err != nil {
				slog.Warn("failed to load task catalog", "path", path, "error", err)
				continue
			}
			all = append(all, defs...)
		}
	}
	return all, nil
}
