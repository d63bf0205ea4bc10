package campaign

import (
	"errors"
	"strings"
	"testing"
)

func TestNewURLBuilder(t *testing.T) {
	tests := []struct {
		base    string
		wantErr bool
	}{
		{"https://phish.corp.example", false},
		{"https://phish.corp.example/", false},
		{"http://localhost:8080", false},
		{"phish.corp.example", true},
		{"/relative", true},
		{"", true},
	}

	for _, tt := range tests {
		_, err := NewURLBuilder(tt.base)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewURLBuilder(%q) error = %v, wantErr %v", tt.base, err, tt.wantErr)
		}
	}
}

func TestURLBuilderPaths(t *testing.T) {
	b, err := NewURLBuilder("https://phish.corp.example/")
	if err != nil {
		t.Fatalf("NewURLBuilder() error: %v", err)
	}

	const tok = "0123456789abcdef0123456789abcdef"

	if got := b.OpenURL(tok); got != "https://phish.corp.example/t/open/"+tok+".png" {
		t.Errorf("OpenURL() = %q", got)
	}
	if got := b.FallURL(tok); got != "https://phish.corp.example/t/fall/"+tok {
		t.Errorf("FallURL() = %q", got)
	}

	click := b.ClickURL(tok)
	prefix := "https://phish.corp.example/t/click/" + tok + "?u="
	if !strings.HasPrefix(click, prefix) {
		t.Fatalf("ClickURL() = %q, want prefix %q", click, prefix)
	}

	// The click URL's target decodes back to the fall URL.
	target, err := DecodeTarget(strings.TrimPrefix(click, prefix))
	if err != nil {
		t.Fatalf("DecodeTarget() error: %v", err)
	}
	if target != b.FallURL(tok) {
		t.Errorf("decoded target = %q, want %q", target, b.FallURL(tok))
	}
}

func TestEncodeDecodeTargetRoundTrip(t *testing.T) {
	targets := []string{
		"https://example.com/landing",
		"https://example.com/landing?q=a&b=c",
		"https://example.com/path with spaces",
	}
	for _, want := range targets {
		got, err := DecodeTarget(EncodeTarget(want))
		if err != nil {
			t.Fatalf("DecodeTarget(EncodeTarget(%q)) error: %v", want, err)
		}
		if got != want {
			t.Errorf("round trip = %q, want %q", got, want)
		}
	}
}

func TestDecodeTargetMalformed(t *testing.T) {
	for _, in := range []string{"", "not!base64", "%%%"} {
		_, err := DecodeTarget(in)
		if !errors.Is(err, ErrMalformedTarget) {
			t.Errorf("DecodeTarget(%q) error = %v, want ErrMalformedTarget", in, err)
		}
	}
}
