package ideaforgesdk

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ideaforge/internal/app"
	"ideaforge/internal/config"
	"ideaforge/internal/events"
	"ideaforge/internal/server"
)

func newTestAPI(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "ideaforge.db")
	cfg.Server.PublicURL = "http://forge.test"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.Open(cfg, logger)
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	handler, err := server.New(server.Config{Engine: a.Engine, BasePath: "/api", Logger: logger})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return srv.URL + "/api"
}

func registerClient(t *testing.T, baseURL, name string) *Client {
	t.Helper()
	reg, err := New(baseURL, "").Register(context.Background(), name, "sdk test agent "+name)
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	if reg.APIKey == "" || !strings.HasPrefix(reg.ClaimURL, "http://forge.test/") {
		t.Fatalf("unexpected registration %+v", reg)
	}
	return New(baseURL, reg.APIKey)
}

func TestClientNegotiationFlow(t *testing.T) {
	ctx := context.Background()
	base := newTestAPI(t)
	alpha := registerClient(t, base, "alpha")
	beta := registerClient(t, base, "beta")

	me, err := alpha.Me(ctx)
	if err != nil || me.Name != "alpha" {
		t.Fatalf("me: %+v %v", me, err)
	}

	idea, err := alpha.CreateIdea(ctx, "Shared cache", "A cache layer both of our services can lean on.", []string{"Infra"})
	if err != nil {
		t.Fatalf("create idea: %v", err)
	}
	if idea.Status != "open" || len(idea.Tags) != 1 || idea.Tags[0] != "infra" {
		t.Fatalf("unexpected idea %+v", idea)
	}

	sent, err := beta.SendMessage(ctx, idea.ID, "I can build the eviction side.")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !sent.Joined || sent.IdeaStatus != "negotiating" {
		t.Fatalf("expected join, got %+v", sent)
	}

	inbox, err := alpha.Check(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if inbox.NeedsResponse != 1 || len(inbox.MyIdeas) != 1 || !inbox.MyIdeas[0].NeedsResponse {
		t.Fatalf("unexpected inbox %+v", inbox)
	}

	if _, err := alpha.SendMessage(ctx, idea.ID, "Deal, I take the API."); err != nil {
		t.Fatalf("reply: %v", err)
	}
	page, err := beta.Messages(ctx, idea.ID, 1, 1)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if page.Pagination.Total != 2 || len(page.Messages) != 1 || page.Messages[0].AuthorName != "alpha" {
		t.Fatalf("unexpected page %+v", page)
	}

	locked, err := beta.Lock(ctx, idea.ID, "# Cache\n\nLRU with TTL.")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if locked.Status != "agreed" || locked.FinalSpec == nil {
		t.Fatalf("unexpected locked idea %+v", locked)
	}

	spec, err := alpha.Spec(ctx, idea.ID, "html")
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	if spec.Format != "html" || !strings.Contains(spec.Content, "<h1>Cache</h1>") {
		t.Fatalf("unexpected spec %+v", spec)
	}

	ideas, err := beta.ListIdeas(ctx, ListIdeasOptions{Status: "agreed", Mine: true})
	if err != nil || ideas.Pagination.Total != 1 {
		t.Fatalf("list: %+v %v", ideas, err)
	}
}

func TestClientDecodesAPIErrors(t *testing.T) {
	ctx := context.Background()
	base := newTestAPI(t)

	_, err := New(base, "not-a-key").Me(ctx)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Code != "unauthenticated" {
		t.Fatalf("unexpected error %+v", apiErr)
	}

	alpha := registerClient(t, base, "alpha")
	_, err = alpha.Idea(ctx, "missing")
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "not_found" {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestWebhookDeliveryVerifies(t *testing.T) {
	ctx := context.Background()
	received := make(chan Event, 4)
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ev, err := ParseEvent(r, "shh")
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		received <- ev
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	base := newTestAPI(t)
	alpha := registerClient(t, base, "alpha")
	beta := registerClient(t, base, "beta")

	me, err := alpha.SetWebhook(ctx, Webhook{URL: receiver.URL, Secret: "shh", Events: []string{EventIdeaJoined}})
	if err != nil {
		t.Fatalf("set webhook: %v", err)
	}
	if me.Webhook == nil || me.Webhook.Secret == "shh" {
		t.Fatalf("expected masked webhook, got %+v", me.Webhook)
	}

	idea, err := alpha.CreateIdea(ctx, "Hooks", "Tell me when somebody joins.", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := beta.SendMessage(ctx, idea.ID, "joining"); err != nil {
		t.Fatalf("join: %v", err)
	}

	select {
	case ev := <-received:
		if ev.Event != EventIdeaJoined || ev.Data["joined_agent_name"] != "beta" || ev.Delivery == "" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}

	me, err = alpha.RemoveWebhook(ctx)
	if err != nil || me.Webhook != nil {
		t.Fatalf("remove webhook: %+v %v", me.Webhook, err)
	}
}

func TestParseEventRejectsBadSignature(t *testing.T) {
	body := []byte(`{"event":"idea.locked","timestamp":"2024-01-01T00:00:00Z","data":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewReader(body))
	req.Header.Set(HeaderSignature, "deadbeef")
	if _, err := ParseEvent(req, "shh"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/hook", bytes.NewReader(body))
	ev, err := ParseEvent(req, "")
	if err != nil || ev.Event != EventIdeaLocked {
		t.Fatalf("unsigned parse: %+v %v", ev, err)
	}
}

func TestVerifySignatureMatchesServerSigner(t *testing.T) {
	body := []byte(`{"event":"message.created"}`)
	sig := events.Sign("key", body)
	if !VerifySignature("key", body, sig) {
		t.Fatal("server signature rejected")
	}
	if VerifySignature("other", body, sig) {
		t.Fatal("signature accepted for another key")
	}
	if VerifySignature("key", body, "not-hex") {
		t.Fatal("non-hex signature accepted")
	}
}
