package timeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Project is the on-disk pairing of export settings and a timeline. Both
// YAML and JSON documents are accepted.
type Project struct {
	Settings Settings `yaml:"settings" json:"settings"`
	Timeline Timeline `yaml:"timeline" json:"timeline"`
}

// LoadProject reads a project file. Relative element sources are resolved
// against the project file's directory.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	project, err := ParseProject(data)
	if err != nil {
		return nil, fmt.Errorf("parse project %s: %w", path, err)
	}
	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	project.resolveSources(base)
	return project, nil
}

// ParseProject decodes a project document without touching the filesystem.
func ParseProject(data []byte) (*Project, error) {
	var project Project
	if err := yaml.Unmarshal(data, &project); err != nil {
		return nil, err
	}
	for ti := range project.Timeline.Tracks {
		track := &project.Timeline.Tracks[ti]
		if strings.TrimSpace(track.ID) == "" {
			track.ID = fmt.Sprintf("track-%d", ti)
		}
		for ei := range track.Elements {
			el := &track.Elements[ei]
			el.Kind = Kind(strings.ToLower(strings.TrimSpace(string(el.Kind))))
		}
	}
	return &project, nil
}

func (p *Project) resolveSources(base string) {
	for ti := range p.Timeline.Tracks {
		for ei := range p.Timeline.Tracks[ti].Elements {
			el := &p.Timeline.Tracks[ti].Elements[ei]
			src := strings.TrimSpace(el.Source)
			if src == "" || filepath.IsAbs(src) || strings.Contains(src, "://") {
				continue
			}
			el.Source = filepath.Join(base, src)
		}
	}
}
