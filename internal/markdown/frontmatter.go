package markdown

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// FrontMatter is the YAML header of a course chapter.
type FrontMatter struct {
	Title              string   `yaml:"title"`
	Description        string   `yaml:"description"`
	SidebarPosition    int      `yaml:"sidebar_position"`
	Difficulty         string   `yaml:"difficulty"`
	Slug               string   `yaml:"slug"`
	EstimatedMinutes   int      `yaml:"estimated_duration"`
	LearningObjectives []string `yaml:"learning_objectives"`
	Draft              bool     `yaml:"draft"`
}

var fence = []byte("---")

// SplitFrontMatter separates a leading "---" delimited YAML block from the
// body. Sources without one return a zero FrontMatter and the input.
func SplitFrontMatter(source []byte) (FrontMatter, []byte, error) {
	var fm FrontMatter

	src := bytes.TrimPrefix(source, []byte("\ufeff"))
	first, rest, ok := bytes.Cut(src, []byte("\n"))
	if !ok || !bytes.Equal(bytes.TrimSpace(first), fence) {
		return fm, source, nil
	}

	var header []byte
	for {
		var line []byte
		line, rest, ok = bytes.Cut(rest, []byte("\n"))
		if bytes.Equal(bytes.TrimSpace(line), fence) {
			break
		}
		header = append(header, line...)
		header = append(header, '\n')
		if !ok {
			// unterminated block: treat the whole file as body
			return FrontMatter{}, source, nil
		}
	}

	if err := yaml.Unmarshal(header, &fm); err != nil {
		return FrontMatter{}, nil, fmt.Errorf("parse front matter: %w", err)
	}
	return fm, rest, nil
}
