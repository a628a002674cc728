package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/mjansen/ledgerlink/internal/ratelimit"
)

// captureTransport records the final outgoing request.
type captureTransport struct {
	captured *http.Request
	err      error
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.captured = req
	if c.err != nil {
		return nil, c.err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Request:    req,
	}, nil
}

type tokenFunc func(ctx context.Context, subjectID string) (string, error)

func (f tokenFunc) AccessToken(ctx context.Context, subjectID string) (string, error) {
	return f(ctx, subjectID)
}

func staticToken(token string) TokenSource {
	return tokenFunc(func(context.Context, string) (string, error) {
		return token, nil
	})
}

func newRequest(t *testing.T, url, subjectID string) *http.Request {
	t.Helper()
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if subjectID != "" {
		req = req.WithContext(WithSubject(req.Context(), subjectID))
	}
	return req
}

func TestTransportInjectsBearerToken(t *testing.T) {
	capture := &captureTransport{}
	tr := &Transport{
		Source:  staticToken("tok-acme"),
		Limiter: ratelimit.New(25, 5*time.Second),
		Base:    capture,
	}

	resp, err := tr.RoundTrip(newRequest(t, "https://moneybird.com/api/v2/contacts", "acme"))
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if got := capture.captured.Header.Get("Authorization"); got != "Bearer tok-acme" {
		t.Errorf("Authorization = %q, want Bearer tok-acme", got)
	}
}

func TestTransportRequiresSubject(t *testing.T) {
	tr := &Transport{
		Source:  staticToken("tok"),
		Limiter: ratelimit.New(25, 5*time.Second),
		Base:    &captureTransport{},
	}

	_, err := tr.RoundTrip(newRequest(t, "https://moneybird.com/api/v2/contacts", ""))
	if !errors.Is(err, ErrNoSubject) {
		t.Errorf("RoundTrip() error = %v, want ErrNoSubject", err)
	}
}

func TestTransportEnforcesQuota(t *testing.T) {
	limiter := ratelimit.New(1, time.Hour)
	if err := limiter.Admit(); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}

	tokenCalls := 0
	tr := &Transport{
		Source: tokenFunc(func(context.Context, string) (string, error) {
			tokenCalls++
			return "tok", nil
		}),
		Limiter: limiter,
		Base:    &captureTransport{},
	}

	_, err := tr.RoundTrip(newRequest(t, "https://moneybird.com/api/v2/contacts", "acme"))
	if !errors.Is(err, ratelimit.ErrQuotaExceeded) {
		t.Errorf("RoundTrip() error = %v, want ErrQuotaExceeded", err)
	}
	if tokenCalls != 0 {
		t.Errorf("token source called %d times, want 0 when quota is spent", tokenCalls)
	}
}

func TestTransportMapsNetworkFailure(t *testing.T) {
	tr := &Transport{
		Source:  staticToken("tok"),
		Limiter: ratelimit.New(25, 5*time.Second),
		Base:    &captureTransport{err: errors.New("connection reset")},
	}

	_, err := tr.RoundTrip(newRequest(t, "https://moneybird.com/api/v2/contacts", "acme"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("RoundTrip() error = %v, want ErrUnavailable", err)
	}
}

func TestTransportClampsPageSize(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "oversized page clamped to max",
			url:  "https://moneybird.com/api/v2/contacts?per_page=500",
			want: "100",
		},
		{
			name: "valid page passes through",
			url:  "https://moneybird.com/api/v2/contacts?per_page=50",
			want: "50",
		},
		{
			name: "invalid page gets default",
			url:  "https://moneybird.com/api/v2/contacts?per_page=abc",
			want: "20",
		},
		{
			name: "absent page left to upstream",
			url:  "https://moneybird.com/api/v2/contacts",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capture := &captureTransport{}
			tr := &Transport{
				Source:  staticToken("tok"),
				Limiter: ratelimit.New(25, 5*time.Second),
				Base:    capture,
			}

			resp, err := tr.RoundTrip(newRequest(t, tt.url, "acme"))
			if err != nil {
				t.Fatalf("RoundTrip() error = %v", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if got := capture.captured.URL.Query().Get("per_page"); got != tt.want {
				t.Errorf("per_page = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClampPageSize(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: -1, want: DefaultPageSize},
		{in: 0, want: DefaultPageSize},
		{in: 1, want: 1},
		{in: 100, want: 100},
		{in: 101, want: MaxPageSize},
	}

	for _, tt := range tests {
		if got := ClampPageSize(tt.in); got != tt.want {
			t.Errorf("ClampPageSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
