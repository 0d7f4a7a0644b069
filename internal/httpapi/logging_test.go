package httpapi

import (
	"bytes"
	"errors"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":      LevelOff,
		"off":   LevelOff,
		"error": LevelError,
		"info":  LevelInfo,
		"debug": LevelDebug,
		"weird": LevelInfo, // default
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestLogLevel_Overrides(t *testing.T) {
	// query param ?log=debug
	r := httptest.NewRequest("GET", "/x?log=debug", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("query override failed: %v", got)
	}
	// shorthand ?log=1
	r = httptest.NewRequest("GET", "/x?log=1", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("shorthand query override failed: %v", got)
	}
	// header X-Log-Level
	r = httptest.NewRequest("GET", "/x", nil)
	r.Header.Set("X-Log-Level", "error")
	if got := requestLogLevel(r); got != LevelError {
		t.Fatalf("header override failed: %v", got)
	}
}

func TestSetDefaultLogLevel(t *testing.T) {
	prev := defaultLogLevel
	defer func() { defaultLogLevel = prev }()
	SetDefaultLogLevel("debug")
	if got := requestLogLevel(httptest.NewRequest("GET", "/x", nil)); got != LevelDebug {
		t.Fatalf("default level not applied: %v", got)
	}
}

func TestLogEndStdlibFallback(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	defer log.SetOutput(orig)
	log.SetOutput(&buf)

	r := httptest.NewRequest("POST", "/models/m/predict", nil)
	logStart(r, LevelInfo, "predict", "m")
	logEnd(r, LevelError, "predict", 500, time.Now(), errors.New("boom"))
	logEnd(r, LevelError, "predict", 200, time.Now(), nil)

	out := buf.String()
	if !strings.Contains(out, "predict start path=/models/m/predict model=m") {
		t.Fatalf("missing start line: %q", out)
	}
	if !strings.Contains(out, "status=500") || !strings.Contains(out, "err=boom") {
		t.Fatalf("missing error line: %q", out)
	}
	if strings.Contains(out, "status=200") {
		t.Fatalf("success should not log at error level: %q", out)
	}
}

func TestLogEndZerolog(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer func() { zlog = nil }()
	r := httptest.NewRequest("POST", "/models/m/load", nil)
	logEnd(r, LevelInfo, "load", 404, time.Now(), errors.New("missing"))
	if !strings.Contains(buf.String(), `"status":404`) || !strings.Contains(buf.String(), `"message":"load end"`) {
		t.Fatalf("unexpected log: %q", buf.String())
	}
}
