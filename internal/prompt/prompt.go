package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"outreach-mailer/internal/models"
)

// Template is a prompt with named {placeholders}. Literal braces are written
// doubled, as in f-strings. Templates are immutable once built.
type Template struct {
	Name      string
	Text      string
	Variables []string
}

func New(name, text string, variables []string) Template {
	vars := append([]string(nil), variables...)
	return Template{Name: name, Text: text, Variables: vars}
}

// MapTemplate summarizes one chunk about the prospect.
func MapTemplate() Template {
	return New("map", models.MapPromptTemplate, models.MapPromptVariables)
}

// CombineTemplate writes the email from the joined summaries.
func CombineTemplate() Template {
	return New("combine", models.CombinePromptTemplate, models.CombinePromptVariables)
}

// Placeholders returns the distinct placeholder names in the text in order of
// first appearance.
func (t Template) Placeholders() ([]string, error) {
	var (
		names []string
		seen  = map[string]bool{}
		data  = []rune(t.Text)
	)
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '{':
			if i+1 < len(data) && data[i+1] == '{' {
				i++
				continue
			}
			end := i + 1
			for end < len(data) && data[end] != '}' {
				end++
			}
			if end == len(data) {
				return nil, fmt.Errorf("%w: %s: unclosed '{' at offset %d", models.ErrTemplate, t.Name, i)
			}
			name := strings.TrimSpace(string(data[i+1 : end]))
			if name == "" {
				return nil, fmt.Errorf("%w: %s: empty placeholder at offset %d", models.ErrTemplate, t.Name, i)
			}
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
			i = end
		case '}':
			if i+1 < len(data) && data[i+1] == '}' {
				i++
				continue
			}
			return nil, fmt.Errorf("%w: %s: single '}' at offset %d", models.ErrTemplate, t.Name, i)
		}
	}
	return names, nil
}

// Validate checks that the placeholders in the text and the declared
// variables are the same set.
func (t Template) Validate() error {
	found, err := t.Placeholders()
	if err != nil {
		return err
	}
	declared := toSet(t.Variables)
	for _, name := range found {
		if !declared[name] {
			return fmt.Errorf("%w: %s: placeholder {%s} is not declared", models.ErrMissingVariable, t.Name, name)
		}
	}
	used := toSet(found)
	for _, name := range t.Variables {
		if !used[name] {
			return fmt.Errorf("%w: %s: declared variable %q never appears", models.ErrUnusedVariable, t.Name, name)
		}
	}
	return nil
}

// Render substitutes every placeholder with its value. Values are inserted
// literally: braces inside a value are never expanded.
func (t Template) Render(vars map[string]string) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	var missing []string
	values := make(map[string]any, len(vars))
	for _, name := range t.Variables {
		v, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		values[name] = v
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s: no value for %s", models.ErrMissingVariable, t.Name, strings.Join(missing, ", "))
	}

	declared := toSet(t.Variables)
	var extra []string
	for name := range vars {
		if !declared[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return "", fmt.Errorf("%w: %s: unexpected values for %s", models.ErrUnusedVariable, t.Name, strings.Join(extra, ", "))
	}

	out, err := prompts.RenderTemplate(t.Text, prompts.TemplateFormatFString, values)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", models.ErrTemplate, t.Name, err)
	}
	return out, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}
