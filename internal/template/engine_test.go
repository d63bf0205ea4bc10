package template

import (
	"strings"
	"testing"

	"github.com/awarenow/phishsim/internal/models"
)

func TestRender(t *testing.T) {
	e := NewEngine()
	tmpl := &models.Template{
		Subject: "Invoice {{.invoice_id}} overdue",
		HTML:    `<p>Hello {{.first_name}},</p><a href="{{.tracking_url}}">Review invoice</a>`,
	}

	subject, html, err := e.Render(tmpl, map[string]any{
		"invoice_id":   "10492",
		"first_name":   "John",
		"tracking_url": "https://phish.corp.example/t/click/abc?u=aGk=",
	})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}

	if subject != "Invoice 10492 overdue" {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(html, "Hello John,") {
		t.Errorf("html missing greeting: %q", html)
	}
	if !strings.Contains(html, `href="https://phish.corp.example/t/click/abc?u=aGk="`) {
		t.Errorf("html missing tracking link: %q", html)
	}
}

func TestRenderUnknownPlaceholder(t *testing.T) {
	e := NewEngine()
	tmpl := &models.Template{
		Subject: "Hi",
		HTML:    `<p>{{.missing}}</p>`,
	}

	// Unknown keys render a "no value" marker rather than erroring;
	// template authors catch the gap in preview.
	_, html, err := e.Render(tmpl, map[string]any{})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(html, "no value") {
		t.Errorf("html = %q, want no-value marker", html)
	}
}

func TestValidate(t *testing.T) {
	e := NewEngine()

	ok := &models.Template{Subject: "s", HTML: "<p>{{.x}}</p>"}
	if err := e.Validate(ok); err != nil {
		t.Errorf("Validate(valid) error: %v", err)
	}

	bad := &models.Template{Subject: "s", HTML: "<p>{{.x</p>"}
	if err := e.Validate(bad); err == nil {
		t.Error("Validate(invalid) error = nil, want error")
	}
}

func TestAppendOpenPixel(t *testing.T) {
	html := AppendOpenPixel("<p>body</p>", "https://phish.corp.example/t/open/abc.png")

	if !strings.HasPrefix(html, "<p>body</p>") {
		t.Errorf("body not preserved: %q", html)
	}
	if !strings.Contains(html, `src="https://phish.corp.example/t/open/abc.png"`) {
		t.Errorf("pixel URL missing: %q", html)
	}
	if !strings.Contains(html, `width="1" height="1"`) {
		t.Errorf("pixel not 1x1: %q", html)
	}
}
