package views

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SetupViewsFolder creates the views directory with an example view file.
// Returns true if the folder was created, false if it already existed.
func SetupViewsFolder(viewsDir string) (bool, error) {
	if _, err := os.Stat(viewsDir); err == nil {
		return false, nil
	}

	if err := os.MkdirAll(viewsDir, 0755); err != nil {
		return false, err
	}

	exampleYAML := `name: compact
description: Channel names and membership only
no_header: true
fields:
  - name: name
    width: 28
    truncate: true
  - name: member
    width: 6
    align: center
`
	if err := os.WriteFile(filepath.Join(viewsDir, "compact.yaml"), []byte(exampleYAML), 0644); err != nil {
		return false, err
	}

	return true, nil
}

// Loader handles loading views from disk and built-in sources
type Loader struct {
	viewsDir string
}

// NewLoader creates a new view loader
func NewLoader(viewsDir string) *Loader {
	return &Loader{viewsDir: viewsDir}
}

// ValidateViewName checks if a view name is safe to use in file paths.
func ValidateViewName(name string) error {
	if name == "" {
		return fmt.Errorf("view name cannot be empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("invalid view name '%s': contains path separator", name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("invalid view name '%s': contains path traversal sequence", name)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid view name '%s': cannot start with '.'", name)
	}
	return nil
}

// LoadView loads a view by name.
// A file on disk overrides the built-in view of the same name.
func (l *Loader) LoadView(name string) (*View, error) {
	normalizedName := strings.ToLower(name)
	if normalizedName == "" {
		normalizedName = "default"
	}

	if normalizedName != "default" && normalizedName != "all" {
		if err := ValidateViewName(name); err != nil {
			return nil, err
		}
	}

	if l.viewsDir != "" {
		viewPath := filepath.Join(l.viewsDir, normalizedName+".yaml")
		if _, err := os.Stat(viewPath); err == nil {
			return l.loadFromDisk(normalizedName, viewPath)
		}
	}

	switch normalizedName {
	case "default":
		return DefaultView(), nil
	case "all":
		return AllView(), nil
	}

	return nil, fmt.Errorf("view '%s' not found", name)
}

// loadFromDisk loads a view from a YAML file with path validation
func (l *Loader) loadFromDisk(name, viewPath string) (*View, error) {
	absViewsDir, err := filepath.Abs(l.viewsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve views directory: %w", err)
	}
	absViewPath, err := filepath.Abs(viewPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve view path: %w", err)
	}
	if !strings.HasPrefix(absViewPath, absViewsDir+string(filepath.Separator)) {
		return nil, fmt.Errorf("invalid view name '%s': path traversal detected", name)
	}

	data, err := os.ReadFile(viewPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("view '%s' not found", name)
		}
		return nil, fmt.Errorf("failed to read view '%s': %w", name, err)
	}

	var view View
	if err := yaml.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("failed to parse view '%s': %w", name, err)
	}
	if view.Name == "" {
		view.Name = name
	}

	if err := validateView(&view); err != nil {
		return nil, fmt.Errorf("invalid view '%s': %w", name, err)
	}

	return &view, nil
}

// ViewInfo contains metadata about a view
type ViewInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	BuiltIn     bool   `json:"built_in"`
}

// ListViews returns the built-in views followed by custom views on disk
func (l *Loader) ListViews() ([]ViewInfo, error) {
	var infos []ViewInfo
	seen := map[string]bool{}

	for _, name := range []string{"default", "all"} {
		view, err := l.LoadView(name)
		if err != nil {
			return nil, err
		}
		_, statErr := os.Stat(filepath.Join(l.viewsDir, name+".yaml"))
		infos = append(infos, ViewInfo{
			Name:        name,
			Description: view.Description,
			BuiltIn:     l.viewsDir == "" || statErr != nil,
		})
		seen[name] = true
	}

	if l.viewsDir == "" {
		return infos, nil
	}

	entries, err := os.ReadDir(l.viewsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return infos, nil
		}
		return nil, fmt.Errorf("failed to read views directory: %w", err)
	}

	var custom []ViewInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		if seen[name] {
			continue
		}
		info := ViewInfo{Name: name}
		if view, err := l.LoadView(name); err == nil {
			info.Description = view.Description
		}
		custom = append(custom, info)
	}
	sort.Slice(custom, func(i, j int) bool { return custom[i].Name < custom[j].Name })

	return append(infos, custom...), nil
}

// validateView checks that a view configuration is valid
func validateView(v *View) error {
	if len(v.Fields) == 0 {
		return fmt.Errorf("view must have at least one field")
	}

	validFields := make(map[string]bool)
	for _, f := range AvailableFields {
		validFields[f] = true
	}

	for _, f := range v.Fields {
		if !validFields[f.Name] {
			return fmt.Errorf("unknown field: %s", f.Name)
		}
		if f.Width < 0 {
			return fmt.Errorf("field %s: width must not be negative", f.Name)
		}
		switch f.Align {
		case "", "left", "right", "center":
		default:
			return fmt.Errorf("field %s: invalid align %q (must be left, right or center)", f.Name, f.Align)
		}
	}

	return nil
}
