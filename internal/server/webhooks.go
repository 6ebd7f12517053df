package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
)

// maskedSecret replaces a stored webhook secret on every read.
const maskedSecret = "********"

type WebhookRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret,omitempty"`
	Events []string `json:"events"`
}

type WebhookResponse struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret,omitempty" doc:"masked when set"`
	Events []string `json:"events"`
}

func webhookResponse(w *domain.WebhookSubscription) *WebhookResponse {
	if w == nil {
		return nil
	}
	out := &WebhookResponse{URL: w.URL, Events: nonNilSlice(w.Events)}
	if w.Secret != "" {
		out.Secret = maskedSecret
	}
	return out
}

// webhookUpdate reads the tri-state "webhook" key from the request body.
func webhookUpdate(ctx context.Context) (engine.OptionalWebhook, huma.StatusError) {
	raw, ok := rawBodyMap(ctx)["webhook"]
	if !ok {
		return engine.OptionalWebhook{}, nil
	}
	if isNullRaw(raw) {
		return engine.OptionalWebhook{Set: true}, nil
	}
	var req WebhookRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return engine.OptionalWebhook{}, newAPIError(http.StatusBadRequest, string(engine.CodeInvalidInput),
			"invalid webhook", "webhook must be an object {url, secret, events} or null")
	}
	return engine.OptionalWebhook{Set: true, Value: &domain.WebhookSubscription{
		URL:    req.URL,
		Secret: req.Secret,
		Events: req.Events,
	}}, nil
}
