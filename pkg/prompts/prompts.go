// Package prompts renders the prompts sent to the inference service from an embedded
// YAML catalog.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Name identifies a catalog entry.
type Name string

const (
	Classify Name = "classify"
	Analyze  Name = "analyze"
	Tests    Name = "tests"
	Chat     Name = "chat"
)

// Data is the template input. Unused fields are ignored by each template.
type Data struct {
	Code      string
	Text      string
	Language  string
	Framework string
	AllClear  string
	Symbols   []string
}

type entry struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type compiled struct {
	system *template.Template
	user   *template.Template
}

// Renderer holds the parsed catalog.
type Renderer struct {
	entries map[Name]compiled
}

// NewRenderer parses the embedded catalog.
func NewRenderer() (*Renderer, error) {
	return parseCatalog(catalogYAML)
}

func parseCatalog(raw []byte) (*Renderer, error) {
	var catalog map[string]entry
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse prompt catalog: %w", err)
	}

	funcs := template.FuncMap{"join": strings.Join}
	r := &Renderer{entries: make(map[Name]compiled, len(catalog))}
	for _, name := range []Name{Classify, Analyze, Tests, Chat} {
		e, ok := catalog[string(name)]
		if !ok {
			return nil, fmt.Errorf("prompt catalog is missing %q", name)
		}
		var c compiled
		var err error
		if e.System != "" {
			if c.system, err = template.New(string(name) + ".system").Funcs(funcs).Option("missingkey=error").Parse(e.System); err != nil {
				return nil, fmt.Errorf("failed to parse %s system template: %w", name, err)
			}
		}
		if c.user, err = template.New(string(name) + ".user").Funcs(funcs).Option("missingkey=error").Parse(e.User); err != nil {
			return nil, fmt.Errorf("failed to parse %s user template: %w", name, err)
		}
		r.entries[name] = c
	}
	return r, nil
}

// Render returns the system and user prompt for name.
func (r *Renderer) Render(name Name, data *Data) (system, user string, err error) {
	c, ok := r.entries[name]
	if !ok {
		return "", "", fmt.Errorf("prompt %s not found", name)
	}
	if data.Language == "" {
		data.Language = DetectLanguage(data.Code)
	}
	if data.Framework == "" {
		data.Framework = TestFramework(data.Language)
	}

	if c.system != nil {
		if system, err = execute(c.system, data); err != nil {
			return "", "", err
		}
	}
	if user, err = execute(c.user, data); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(system), strings.TrimSpace(user), nil
}

func execute(t *template.Template, data *Data) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// DetectLanguage guesses the language of a snippet from its declarations.
func DetectLanguage(code string) string {
	switch {
	case strings.Contains(code, "package ") && strings.Contains(code, "func "):
		return "Go"
	case strings.Contains(code, "def ") && strings.Contains(code, ":"):
		return "Python"
	case strings.Contains(code, "interface ") && strings.Contains(code, ": "),
		strings.Contains(code, "): "):
		return "TypeScript"
	case strings.Contains(code, "function") || strings.Contains(code, "=>") || strings.Contains(code, "const "):
		return "JavaScript"
	default:
		return "source"
	}
}

// TestFramework picks the conventional unit-test framework for a language.
func TestFramework(language string) string {
	switch language {
	case "Python":
		return "Python's unittest module"
	case "JavaScript", "TypeScript":
		return "Jest"
	case "Go":
		return "Go's testing package with table-driven tests"
	default:
		return "the language's standard unit-test framework"
	}
}
