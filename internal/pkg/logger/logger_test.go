package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
		SetRedactPII(true)
	})
	return &buf
}

func TestRedaction(t *testing.T) {
	buf := capture(t)
	Info("lead paused",
		"lead_email", "john.doe@example.com",
		"phone", "+49 151 2345678",
		"profile_url", "https://www.linkedin.com/in/jdoe",
		"note", "reply from ann@corp.io via https://linkedin.com/in/ann-x",
	)

	var entry map[string]string
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	want := map[string]string{
		"level":       "INFO",
		"msg":         "lead paused",
		"lead_email":  "jo***@example.com",
		"phone":       "***78",
		"profile_url": "https://linkedin.com/in/***",
		"note":        "reply from an***@corp.io via https://linkedin.com/in/***",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %q, want %q", k, entry[k], v)
		}
	}
}

func TestLevelFilter(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)
	Info("dropped")
	Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{"debug": DEBUG, "WARN": WARN, "error": ERROR, "": INFO, "verbose": INFO}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRedactEmail(t *testing.T) {
	tests := []struct{ in, want string }{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
