package catalog

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// frontMatter holds the fields a content file may declare.
type frontMatter struct {
	Title  string `yaml:"title"`
	Type   string `yaml:"type"`
	Status string `yaml:"status"`
	Draft  bool   `yaml:"draft"`
	Slug   string `yaml:"slug"`
	URL    string `yaml:"url"`
	Date   string `yaml:"date"`
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// splitFrontMatter separates a leading `---` delimited YAML block from the
// body. Content without one is returned unchanged with raw == "".
func splitFrontMatter(content []byte) (raw string, body []byte, err error) {
	nl := "\n"
	if bytes.Contains(content, []byte("\r\n")) {
		nl = "\r\n"
	}
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return "", content, nil
	}
	rest := content[len(open):]
	if bytes.HasPrefix(rest, open) {
		return "", rest[len(open):], nil
	}
	closing := []byte(nl + "---")
	idx := bytes.Index(rest, closing)
	if idx < 0 {
		return "", nil, fmt.Errorf("front matter: missing closing delimiter")
	}
	raw = string(rest[:idx])
	body = rest[idx+len(closing):]
	body = bytes.TrimPrefix(body, []byte(nl))
	return raw, body, nil
}

func parseFrontMatter(raw string) (frontMatter, error) {
	var fm frontMatter
	if strings.TrimSpace(raw) == "" {
		return fm, nil
	}
	if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
		return fm, fmt.Errorf("front matter: %w", err)
	}
	return fm, nil
}

func (fm frontMatter) status() Status {
	switch {
	case fm.Draft:
		return StatusDraft
	case fm.Status == "":
		return StatusPublished
	case strings.EqualFold(fm.Status, "published"):
		return StatusPublished
	default:
		return Status(strings.ToLower(fm.Status))
	}
}

func (fm frontMatter) date() (time.Time, bool) {
	if fm.Date == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, fm.Date); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
