package common

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestJoinPathEscapesEachSegment(t *testing.T) {
	got, err := JoinPath("https://catalog.example/api/", "search", "fate/stay night", "2")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	want := "https://catalog.example/api/search/fate%2Fstay%20night/2"
	if got != want {
		t.Fatalf("JoinPath = %q, want %q", got, want)
	}
}

func TestJoinPathKeepsDotSegments(t *testing.T) {
	got, err := JoinPath("http://host", "search", "..", "1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if got != "http://host/search/../1" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestJoinPathRejectsRelativeBase(t *testing.T) {
	if _, err := JoinPath("/api", "search"); err == nil {
		t.Fatal("expected error for base without scheme and host")
	}
}

func TestGetJSONDecodesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "catalog-test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("unexpected accept %q", r.Header.Get("Accept"))
		}
		_, _ = w.Write([]byte(`{"name":"ok"}`))
	}))
	defer server.Close()

	var out struct {
		Name string `json:"name"`
	}
	err := GetJSON(context.Background(), server.Client(), Request{Provider: "test", URL: server.URL, UserAgent: "catalog-test"}, &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Name != "ok" {
		t.Fatalf("unexpected body %+v", out)
	}
}

func TestGetJSONReturnsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	var out map[string]any
	err := GetJSON(context.Background(), server.Client(), Request{Provider: "jikan", URL: server.URL}, &out)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode() != http.StatusTooManyRequests || statusErr.Body != "slow down" {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
	if statusErr.RetryAfterHint() != 3*time.Second {
		t.Fatalf("expected Retry-After hint, got %v", statusErr.RetryAfterHint())
	}
	if !strings.HasPrefix(err.Error(), "jikan HTTP 429") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestGetJSONWrapsDecodeErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	var out map[string]any
	err := GetJSON(context.Background(), server.Client(), Request{Provider: "catalog-api", URL: server.URL}, &out)
	if err == nil || !strings.Contains(err.Error(), "catalog-api: decode response") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestCleanHTMLText(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"tags", "<b>Hello</b> <i>World</i>", "Hello World"},
		{"empty", "", ""},
		{"whitespace", "   Kaguya-sama   wa  ", "Kaguya-sama wa"},
		{"entities", "Tom &amp; Jerry", "Tom & Jerry"},
		{"escaped tag", "Re:Zero &lt;br&gt;", "Re:Zero"},
		{"apostrophe", "JoJo&#39;s Bizarre Adventure", "JoJo's Bizarre Adventure"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanHTMLText(tc.input); got != tc.want {
				t.Errorf("CleanHTMLText(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := map[string]time.Duration{
		"":                              0,
		"2":                             2 * time.Second,
		"-5":                            0,
		"soon":                          0,
		"Fri, 02 Jan 2026 03:04:15 GMT": 10 * time.Second,
		"Fri, 02 Jan 2026 03:04:00 GMT": 0,
	}
	for raw, want := range cases {
		if got := ParseRetryAfter(raw, now); got != want {
			t.Fatalf("ParseRetryAfter(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestCleanSynopsisKeepsParagraphsAndDropsCredit(t *testing.T) {
	raw := "Yuji eats a finger.<br><br>Curses  follow.\r\n<i>Gojo</i> arrives.\n\n\n\n[Written by MAL Rewrite]"
	want := "Yuji eats a finger.\n\nCurses follow.\nGojo arrives."
	if got := CleanSynopsis(raw); got != want {
		t.Fatalf("CleanSynopsis() = %q, want %q", got, want)
	}
	if got := CleanSynopsis("Plain text (Source: Crunchyroll)"); got != "Plain text" {
		t.Fatalf("unexpected credit handling: %q", got)
	}
}
