// Package facebook publishes stories to a Facebook page through the Graph API.
package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/storylinehq/publisher/core/config"
	"github.com/storylinehq/publisher/domains/account"
	"github.com/storylinehq/publisher/platforms"
)

const httpTimeout = 15 * time.Second

var httpClient = &http.Client{Timeout: httpTimeout}

type Adapter struct {
	cfg config.PlatformAPIConfig
}

func NewAdapter(cfg config.PlatformAPIConfig) *Adapter {
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Platform() string {
	return platforms.Facebook
}

type publishResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

func (a *Adapter) Publish(ctx context.Context, req platforms.PublishRequest) (platforms.PublishResult, error) {
	pageID := req.Account.ExternalID
	endpoint := fmt.Sprintf("%s/%s/feed", a.cfg.BaseURL, pageID)

	form := url.Values{}
	form.Set("message", req.Item.Body)
	form.Set("access_token", req.Account.AccessToken)
	if req.MediaPath != "" {
		// Photo posts go through /photos with a hosted URL.
		endpoint = fmt.Sprintf("%s/%s/photos", a.cfg.BaseURL, pageID)
		form.Set("url", req.MediaPath)
		form.Set("caption", req.Item.Body)
		form.Del("message")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return platforms.PublishResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return platforms.PublishResult{}, platforms.MapNetworkError(platforms.Facebook, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return platforms.PublishResult{}, platforms.MapHTTPError(platforms.Facebook, req.Account.ID, resp.StatusCode, string(body))
	}

	var parsed publishResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return platforms.PublishResult{}, platforms.MapNetworkError(platforms.Facebook, err)
	}

	externalID := parsed.PostID
	if externalID == "" {
		externalID = parsed.ID
	}
	logrus.Debugf("[FACEBOOK] Published item %s as %s", req.Item.ID, externalID)
	return platforms.PublishResult{ExternalID: externalID}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// RefreshCredential exchanges the current long-lived token for a fresh one.
func (a *Adapter) RefreshCredential(ctx context.Context, acc account.Account) (platforms.RefreshedCredential, error) {
	query := url.Values{}
	query.Set("grant_type", "fb_exchange_token")
	query.Set("client_id", a.cfg.ClientID)
	query.Set("client_secret", a.cfg.ClientSecret)
	query.Set("fb_exchange_token", acc.AccessToken)

	endpoint := fmt.Sprintf("%s/oauth/access_token?%s", a.cfg.BaseURL, query.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return platforms.RefreshedCredential{}, err
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return platforms.RefreshedCredential{}, platforms.MapNetworkError(platforms.Facebook, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return platforms.RefreshedCredential{}, platforms.MapHTTPError(platforms.Facebook, acc.ID, resp.StatusCode, string(body))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return platforms.RefreshedCredential{}, platforms.MapNetworkError(platforms.Facebook, err)
	}

	return platforms.RefreshedCredential{
		AccessToken: parsed.AccessToken,
		ExpiresIn:   time.Duration(parsed.ExpiresIn) * time.Second,
	}, nil
}
