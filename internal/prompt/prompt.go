// Package prompt renders the text templates sent to the language model.
package prompt

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"reviewrag/internal/domain"
)

// ProductBot is the template name of the product question answering prompt.
const ProductBot = "product_bot"

const productBotTemplate = `You are an expert EcommerceBot specialized in product recommendations and handling customer queries.
Analyze the provided product titles, ratings, and reviews to provide accurate, helpful responses.
Stay relevant to the context, and keep your answers concise and informative.

CONTEXT:
{{- range $i, $d := .Context }}
[{{ add1 $i }}] product: {{ $d.Metadata.Title | default "unknown" }}
    rating: {{ $d.Metadata.Rating }}
    summary: {{ $d.Metadata.Summary | trim }}
    review: {{ $d.Content | trim }}
{{- else }}
(no matching reviews)
{{- end }}

QUESTION: {{ .Question | trim }}

YOUR ANSWER:
`

// Data is the input to every prompt template.
type Data struct {
	Context  []domain.Document
	Question string
}

// Library holds parsed templates by name.
type Library struct {
	templates map[string]*template.Template
}

// Default returns the built-in templates.
func Default() *Library {
	l, err := NewLibrary(map[string]string{ProductBot: productBotTemplate})
	if err != nil {
		panic(err)
	}
	return l
}

// NewLibrary parses sources. Missing keys are errors at render time.
func NewLibrary(sources map[string]string) (*Library, error) {
	l := &Library{templates: make(map[string]*template.Template, len(sources))}
	for name, src := range sources {
		tmpl, err := template.New(name).Option("missingkey=error").Funcs(sprig.FuncMap()).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %q: %w", name, err)
		}
		l.templates[name] = tmpl
	}
	return l, nil
}

// Render executes the named template.
func (l *Library) Render(name string, data Data) (string, error) {
	tmpl, ok := l.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", name, err)
	}
	return buf.String(), nil
}
