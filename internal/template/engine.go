package template

import (
	"bytes"
	"fmt"
	htmlTemplate "html/template"
	textTemplate "text/template"

	"github.com/awarenow/phishsim/internal/models"
)

// Engine renders simulation message templates with data
type Engine struct{}

// NewEngine creates a new template engine
func NewEngine() *Engine {
	return &Engine{}
}

// Render substitutes the named placeholders into a template's subject
// and HTML body. The subject is a text template, the body an HTML
// template with auto-escaping.
func (e *Engine) Render(tmpl *models.Template, data map[string]any) (string, string, error) {
	subject, err := e.renderText("subject", tmpl.Subject, data)
	if err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}

	html, err := e.renderHTML("html", tmpl.HTML, data)
	if err != nil {
		return "", "", fmt.Errorf("failed to render html: %w", err)
	}

	return subject, html, nil
}

// Validate checks if template syntax is valid
func (e *Engine) Validate(tmpl *models.Template) error {
	if tmpl.Subject != "" {
		if _, err := textTemplate.New("subject").Parse(tmpl.Subject); err != nil {
			return fmt.Errorf("invalid subject template: %w", err)
		}
	}

	if _, err := htmlTemplate.New("html").Parse(tmpl.HTML); err != nil {
		return fmt.Errorf("invalid html template: %w", err)
	}

	return nil
}

func (e *Engine) renderText(name, tmplStr string, data map[string]any) (string, error) {
	t, err := textTemplate.New(name).Parse(tmplStr)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (e *Engine) renderHTML(name, tmplStr string, data map[string]any) (string, error) {
	t, err := htmlTemplate.New(name).Parse(tmplStr)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// AppendOpenPixel appends an invisible 1x1 image pointing at the open
// tracking endpoint to a rendered message body.
func AppendOpenPixel(html, openURL string) string {
	return html + fmt.Sprintf(`<img src="%s" width="1" height="1" style="display:none" alt=""/>`, openURL)
}

// PreviewData returns sample placeholder values for template previews.
func PreviewData() map[string]any {
	return map[string]any{
		"first_name":      "John",
		"company":         "ContosoCorp",
		"invoice_id":      "10492",
		"tracking_url":    "#",
		"recipient_email": "john@contoso.example",
	}
}
