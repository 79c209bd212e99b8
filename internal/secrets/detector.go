package secrets

import (
	"fmt"
	"regexp"
	"sort"
)

// Pattern describes one kind of secret. When Group is non-zero only that
// capture group is treated as the secret, so key names and JSON quoting
// around a value survive redaction.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
	Group int
}

// Match is a detected secret span within a text.
type Match struct {
	Start, End int
	Kind       string
}

// KeyPattern marks attribute keys whose whole value is a secret. Values
// shorter than MinLen are left alone.
type KeyPattern struct {
	Name   string
	Regex  *regexp.Regexp
	MinLen int
}

// Detector finds secret-shaped substrings.
type Detector struct {
	patterns []Pattern
	keys     []KeyPattern
}

// NewDetector creates a detector with the default patterns.
func NewDetector() *Detector {
	return &Detector{
		patterns: []Pattern{
			// API keys
			{Name: "api_key", Regex: regexp.MustCompile(`sk-(?:ant-)?[a-zA-Z0-9_-]{20,}`)},
			{Name: "github_token", Regex: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`)},

			// AWS keys
			{Name: "aws_access_key", Regex: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},

			// Bearer tokens
			{Name: "bearer_token", Regex: regexp.MustCompile(`Bearer\s+([a-zA-Z0-9._~+/-]+=*)`), Group: 1},

			// Telegram bot tokens
			{Name: "bot_token", Regex: regexp.MustCompile(`\b\d{8,10}:[a-zA-Z0-9_-]{30,}`)},

			// Passwords
			{Name: "password", Regex: regexp.MustCompile(`(?i)\b(?:password|passwd|pwd)["']?\s*[:=]\s*"?([^\s"\\,}]+)`), Group: 1},

			// Generic secrets and auth tokens
			{Name: "secret", Regex: regexp.MustCompile(`(?i)\b(?:secret|token|api[_-]?key)["']?\s*[:=]\s*"?([^\s"\\,}]{8,})`), Group: 1},
		},
		keys: []KeyPattern{
			{Name: "password", Regex: regexp.MustCompile(`(?i)(?:^|[_.-])(?:password|passwd|pwd)$`), MinLen: 1},
			{Name: "secret", Regex: regexp.MustCompile(`(?i)(?:^|[_.-])(?:secret|token|api[_-]?key)$`), MinLen: 8},
		},
	}
}

// AddPattern registers an extra pattern. group selects the capture group
// holding the secret (0 for the whole match).
func (d *Detector) AddPattern(name, pattern string, group int) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	if group < 0 || group > re.NumSubexp() {
		return fmt.Errorf("secrets: pattern %q has no group %d", name, group)
	}
	d.patterns = append(d.patterns, Pattern{Name: name, Regex: re, Group: group})
	return nil
}

// Find returns non-overlapping secret spans in text, ordered by position.
// Spans inside existing placeholders are ignored so redacted text can be
// scanned again without nesting references.
func (d *Detector) Find(text string) []Match {
	protected := placeholderRe.FindAllStringIndex(text, -1)

	var found []Match
	for _, p := range d.patterns {
		for _, loc := range p.Regex.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2*p.Group], loc[2*p.Group+1]
			if start < 0 || start == end || overlaps(start, end, protected) {
				continue
			}
			found = append(found, Match{Start: start, End: end, Kind: p.Name})
		}
	}

	// Earliest first; for equal starts the longer span wins.
	sort.Slice(found, func(i, j int) bool {
		if found[i].Start != found[j].Start {
			return found[i].Start < found[j].Start
		}
		return found[i].End > found[j].End
	})

	var out []Match
	lastEnd := -1
	for _, m := range found {
		if m.Start < lastEnd {
			continue
		}
		out = append(out, m)
		lastEnd = m.End
	}
	return out
}

// FindField returns the secret spans of value stored under key. A value
// under a secret-named key is one span as a whole unless it already holds
// a placeholder; otherwise value is scanned like free text.
func (d *Detector) FindField(key, value string) []Match {
	if value != "" && !placeholderRe.MatchString(value) {
		for _, k := range d.keys {
			if k.Regex.MatchString(key) && len(value) >= k.MinLen {
				return []Match{{Start: 0, End: len(value), Kind: k.Name}}
			}
		}
	}
	return d.Find(value)
}

func overlaps(start, end int, spans [][]int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}
