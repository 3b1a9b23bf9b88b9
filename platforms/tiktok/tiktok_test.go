package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
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
		BaseURL: "https://open.test/v2",
	})
}

func TestPublish_RequiresVideo(t *testing.T) {
	_, err := testAdapter().Publish(context.Background(), platforms.PublishRequest{
		Item:    content.ContentItem{ID: "item-1", Body: "caption"},
		Account: account.Account{ID: "acc-1", AccessToken: "tok"},
	})

	var confErr pkgError.ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("expected configuration error for missing video, got %T", err)
	}
}

func TestPublish_SendsPullFromURLPayload(t *testing.T) {
	var gotAuth string
	var gotPayload publishRequest

	swapClient(t, func(req *http.Request) (*http.Response, error) {
		gotAuth = req.Header.Get("Authorization")
		body, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(body, &gotPayload)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"data":{"publish_id":"pub-77"},"error":{"code":"ok"}}`))),
			Header:     make(http.Header),
		}, nil
	})

	result, err := testAdapter().Publish(context.Background(), platforms.PublishRequest{
		Item:      content.ContentItem{ID: "item-1", Body: "caption"},
		Account:   account.Account{ID: "acc-1", AccessToken: "tok"},
		MediaPath: "https://cdn.test/v.mp4",
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if result.ExternalID != "pub-77" {
		t.Fatalf("unexpected external id %q", result.ExternalID)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotPayload.SourceInfo.Source != "PULL_FROM_URL" || gotPayload.SourceInfo.VideoURL != "https://cdn.test/v.mp4" {
		t.Fatalf("unexpected source info: %+v", gotPayload.SourceInfo)
	}
	if gotPayload.PostInfo.Title != "caption" {
		t.Fatalf("unexpected post info: %+v", gotPayload.PostInfo)
	}
}

func TestPublish_ErrorEnvelopeWith200IsTransient(t *testing.T) {
	swapClient(t, func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"data":{},"error":{"code":"spam_risk_too_many_posts","message":"slow down"}}`))),
			Header:     make(http.Header),
		}, nil
	})

	_, err := testAdapter().Publish(context.Background(), platforms.PublishRequest{
		Item:      content.ContentItem{ID: "item-1"},
		Account:   account.Account{ID: "acc-1", AccessToken: "tok"},
		MediaPath: "https://cdn.test/v.mp4",
	})

	var transient pkgError.TransientPlatformError
	if !errors.As(err, &transient) {
		t.Fatalf("expected transient error from envelope, got %T (%v)", err, err)
	}
}

func TestRefreshCredential_RequiresRefreshToken(t *testing.T) {
	_, err := testAdapter().RefreshCredential(context.Background(), account.Account{ID: "acc-1"})

	var credErr pkgError.CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected credential error, got %T", err)
	}
}
