// Package theme holds the glyph catalog used to render status bars: activity
// prefixes, the caught-up checkmark, the notification marker and the reaction
// controls. The catalog ships embedded and can be overridden from a YAML file.
package theme

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Controls are the reactions attached to bar messages.
type Controls struct {
	Drop    string `yaml:"drop" json:"drop"`
	DropAll string `yaml:"drop_all" json:"drop_all"`
	Persist string `yaml:"persist" json:"persist"`
	Delete  string `yaml:"delete" json:"delete"`
}

// All returns the controls in the order they are attached.
func (c Controls) All() []string {
	out := make([]string, 0, 4)
	for _, e := range []string{c.Drop, c.DropAll, c.Persist, c.Delete} {
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Theme is the glyph catalog.
type Theme struct {
	Checkmark     string   `yaml:"checkmark" json:"checkmark"`
	Notification  string   `yaml:"notification" json:"notification"`
	Idle          string   `yaml:"idle" json:"idle"`
	Sleep         string   `yaml:"sleep" json:"sleep"`
	Normal        string   `yaml:"normal" json:"normal"`
	ConsoleHeader string   `yaml:"console_header" json:"console_header"`
	Prefixes      []string `yaml:"prefixes" json:"prefixes"`
	Controls      Controls `yaml:"controls" json:"controls"`
}

var loadDefault = sync.OnceValues(func() (*Theme, error) {
	t := &Theme{}
	if err := yaml.Unmarshal(defaultYAML, t); err != nil {
		return nil, fmt.Errorf("parse embedded theme: %w", err)
	}
	return t, t.Validate()
})

// Default returns a copy of the embedded catalog.
func Default() *Theme {
	t, err := loadDefault()
	if err != nil {
		panic(err)
	}
	cp := *t
	cp.Prefixes = append([]string(nil), t.Prefixes...)
	return &cp
}

// Load reads a YAML catalog from path, overlaying it on the embedded default.
// An empty path returns the default.
func Load(path string) (*Theme, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read theme %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the embedded default and validates the result.
func Parse(data []byte) (*Theme, error) {
	t := Default()
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse theme: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the glyphs the bar engine cannot work without.
func (t *Theme) Validate() error {
	var missing []string
	if t.Checkmark == "" {
		missing = append(missing, "checkmark")
	}
	if t.Idle == "" {
		missing = append(missing, "idle")
	}
	if t.Sleep == "" {
		missing = append(missing, "sleep")
	}
	if len(missing) > 0 {
		return fmt.Errorf("theme missing glyphs: %s", strings.Join(missing, ", "))
	}
	return nil
}

var customEmoji = regexp.MustCompile(`^<a?:\w+:\d+>`)

// SplitPrefix separates a leading activity glyph from the bar body. Catalog
// entries are matched first (longest wins); any leading custom emoji also
// counts as a prefix.
func (t *Theme) SplitPrefix(content string) (prefix, body string) {
	best := ""
	for _, p := range t.known() {
		if p != "" && strings.HasPrefix(content, p) && len(p) > len(best) {
			best = p
		}
	}
	if best == "" {
		best = customEmoji.FindString(content)
	}
	if best == "" {
		return "", content
	}
	return best, strings.TrimLeft(content[len(best):], " ")
}

// WithPrefix replaces the leading glyph of content with prefix.
func (t *Theme) WithPrefix(content, prefix string) string {
	_, body := t.SplitPrefix(content)
	switch {
	case prefix == "":
		return body
	case body == "":
		return prefix
	default:
		return prefix + " " + body
	}
}

// IsKnownPrefix reports whether p is in the catalog.
func (t *Theme) IsKnownPrefix(p string) bool {
	for _, k := range t.known() {
		if k == p {
			return true
		}
	}
	return false
}

func (t *Theme) known() []string {
	return append([]string{t.Idle, t.Sleep, t.Normal}, t.Prefixes...)
}
