// Package media triggers the external rendering pipeline for items whose
// assets are not generated yet. The call is fire and forget; readiness is
// observed through MediaStatus on later scheduler cycles.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/storylinehq/publisher/core/config"
	"github.com/storylinehq/publisher/domains/content"
)

const httpTimeout = 10 * time.Second

var httpClient = &http.Client{Timeout: httpTimeout}

type Generator struct {
	cfg config.MediaConfig
}

func NewGenerator(cfg config.MediaConfig) content.IMediaGenerator {
	return &Generator{cfg: cfg}
}

type generationRequest struct {
	ContentID string   `json:"content_id"`
	Body      string   `json:"body"`
	Platforms []string `json:"platforms"`
}

// RequestGeneration asks the rendering service to produce assets for the item.
// Errors are logged, never returned: the item stays media-pending and the
// next cycle requests again.
func (g *Generator) RequestGeneration(item content.ContentItem) {
	if !g.cfg.Enabled || g.cfg.BaseURL == "" {
		logrus.Debugf("[MEDIA] Generation disabled, item %s stays pending", item.ID)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		defer cancel()

		payload, err := json.Marshal(generationRequest{
			ContentID: item.ID,
			Body:      item.Body,
			Platforms: item.Platforms,
		})
		if err != nil {
			logrus.WithError(err).Errorf("[MEDIA] Failed to encode generation request for %s", item.ID)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/render", bytes.NewReader(payload))
		if err != nil {
			logrus.WithError(err).Errorf("[MEDIA] Failed to build generation request for %s", item.ID)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := httpClient.Do(req)
		if err != nil {
			logrus.WithError(err).Warnf("[MEDIA] Generation request for %s failed", item.ID)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			logrus.Warnf("[MEDIA] Generation request for %s returned status %d", item.ID, resp.StatusCode)
			return
		}
		logrus.Debugf("[MEDIA] Generation requested for item %s", item.ID)
	}()
}
