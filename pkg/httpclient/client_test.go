package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPClient_Do_SetsProfileHeaders(t *testing.T) {
	tests := []struct {
		clientType ClientType
		wantUA     string
	}{
		{FeedClient, UserAgent},
		{CloudflareClient, "curl/8.7.1"},
	}

	for _, tt := range tests {
		t.Run(string(tt.clientType), func(t *testing.T) {
			var gotUA string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUA = r.Header.Get("User-Agent")
			}))
			defer server.Close()

			req, err := http.NewRequest(http.MethodGet, server.URL, nil)
			if err != nil {
				t.Fatalf("NewRequest: %v", err)
			}
			resp, err := NewClient(tt.clientType, 0).Do(req)
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			resp.Body.Close()

			if gotUA != tt.wantUA {
				t.Errorf("User-Agent = %q, want %q", gotUA, tt.wantUA)
			}
		})
	}
}

func TestSetConditional(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/feed", nil)
	SetConditional(req, `"abc"`, "Wed, 21 Oct 2015 07:28:00 GMT")

	if got := req.Header.Get("If-None-Match"); got != `"abc"` {
		t.Errorf("If-None-Match = %q", got)
	}
	if got := req.Header.Get("If-Modified-Since"); got != "Wed, 21 Oct 2015 07:28:00 GMT" {
		t.Errorf("If-Modified-Since = %q", got)
	}

	empty := httptest.NewRequest(http.MethodGet, "http://example.com/feed", nil)
	SetConditional(empty, "", "")
	if len(empty.Header) != 0 {
		t.Errorf("expected no headers, got %v", empty.Header)
	}
}

func TestParseClientType(t *testing.T) {
	if got := ParseClientType("browser"); got != BrowserClient {
		t.Errorf("got %q", got)
	}
	if got := ParseClientType(""); got != FeedClient {
		t.Errorf("got %q", got)
	}
}
