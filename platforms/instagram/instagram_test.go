package instagram

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/storylinehq/publisher/core/config"
	"github.com/storylinehq/publisher/domains/account"
	"github.com/storylinehq/publisher/domains/content"
	"github.com/storylinehq/publisher/platforms"
	pkgError "github.com/storylinehq/publisher/pkg/error"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func swapClient(t *testing.T, rt roundTripperFunc) {
	t.Helper()
	orig := httpClient
	t.Cleanup(func() { httpClient = orig })
	httpClient = &http.Client{Transport: rt}
}

func testAdapter() *Adapter {
	return NewAdapter(config.PlatformAPIConfig{
		Enabled: true,
		BaseURL: "https://graph.test/v19.0",
	})
}

func publishReq(mediaPath string) platforms.PublishRequest {
	return platforms.PublishRequest{
		Item:      content.ContentItem{ID: "item-1", Body: "hello world"},
		Account:   account.Account{ID: "acc-1", ExternalID: "ig-77", AccessToken: "ig-token"},
		MediaPath: mediaPath,
	}
}

func TestPublish_RequiresMedia(t *testing.T) {
	calls := 0
	swapClient(t, func(req *http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("should not be called")
	})

	_, err := testAdapter().Publish(context.Background(), publishReq(""))
	var cfgErr pkgError.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error for a text-only post, got %T", err)
	}
	if calls != 0 {
		t.Fatalf("no request should be sent, got %d", calls)
	}
}

func TestPublish_ContainerThenPublishFlow(t *testing.T) {
	var gotURLs []string
	var gotForms []url.Values

	swapClient(t, func(req *http.Request) (*http.Response, error) {
		gotURLs = append(gotURLs, req.URL.String())
		body, _ := io.ReadAll(req.Body)
		form, _ := url.ParseQuery(string(body))
		gotForms = append(gotForms, form)

		payload := `{"id":"cont-1"}`
		if len(gotURLs) == 2 {
			payload = `{"id":"ig-post-9"}`
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(payload))),
			Header:     make(http.Header),
		}, nil
	})

	result, err := testAdapter().Publish(context.Background(), publishReq("https://cdn.test/img.jpg"))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if result.ExternalID != "ig-post-9" {
		t.Fatalf("unexpected external id %q", result.ExternalID)
	}
	if len(gotURLs) != 2 ||
		gotURLs[0] != "https://graph.test/v19.0/ig-77/media" ||
		gotURLs[1] != "https://graph.test/v19.0/ig-77/media_publish" {
		t.Fatalf("unexpected call sequence %v", gotURLs)
	}
	if gotForms[0].Get("image_url") != "https://cdn.test/img.jpg" || gotForms[0].Get("caption") != "hello world" {
		t.Fatalf("unexpected container form: %v", gotForms[0])
	}
	if gotForms[1].Get("creation_id") != "cont-1" || gotForms[1].Get("access_token") != "ig-token" {
		t.Fatalf("unexpected publish form: %v", gotForms[1])
	}
}

func TestPublish_ContainerFailureShortCircuits(t *testing.T) {
	calls := 0
	swapClient(t, func(req *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{
			StatusCode: http.StatusInternalServerError,
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"error":{}}`))),
			Header:     make(http.Header),
		}, nil
	})

	_, err := testAdapter().Publish(context.Background(), publishReq("https://cdn.test/img.jpg"))
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("media_publish must not run after a failed container, got %d calls", calls)
	}
}

func TestPublish_ErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		retriable bool
	}{
		{"unauthorized is a credential error", http.StatusUnauthorized, true},
		{"rate limit is transient", http.StatusTooManyRequests, true},
		{"server error is transient", http.StatusInternalServerError, true},
		{"bad request needs an operator", http.StatusBadRequest, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			swapClient(t, func(req *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: tc.status,
					Body:       io.NopCloser(bytes.NewReader([]byte(`{"error":{}}`))),
					Header:     make(http.Header),
				}, nil
			})

			_, err := testAdapter().Publish(context.Background(), publishReq("https://cdn.test/img.jpg"))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := pkgError.IsRetriable(err); got != tc.retriable {
				t.Fatalf("IsRetriable = %t, want %t for status %d", got, tc.retriable, tc.status)
			}
		})
	}
}

func TestPublish_NetworkErrorIsTransient(t *testing.T) {
	swapClient(t, func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset")
	})

	_, err := testAdapter().Publish(context.Background(), publishReq("https://cdn.test/img.jpg"))
	var transient pkgError.TransientPlatformError
	if !errors.As(err, &transient) {
		t.Fatalf("expected transient error, got %T", err)
	}
}

func TestRefreshCredential_UsesRefreshGrant(t *testing.T) {
	var gotQuery url.Values

	swapClient(t, func(req *http.Request) (*http.Response, error) {
		gotQuery = req.URL.Query()
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"access_token":"refreshed","token_type":"bearer","expires_in":5184000}`))),
			Header:     make(http.Header),
		}, nil
	})

	cred, err := testAdapter().RefreshCredential(context.Background(), account.Account{
		ID:          "acc-1",
		AccessToken: "old-token",
	})
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if cred.AccessToken != "refreshed" {
		t.Fatalf("unexpected token %q", cred.AccessToken)
	}
	if cred.ExpiresIn.Hours() != 1440 {
		t.Fatalf("unexpected expiry %s", cred.ExpiresIn)
	}
	if gotQuery.Get("grant_type") != "ig_refresh_token" || gotQuery.Get("access_token") != "old-token" {
		t.Fatalf("unexpected query: %v", gotQuery)
	}
}
