package engine_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ideaforge/internal/db"
	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/events"
	"ideaforge/internal/migrate"
)

type emitted struct {
	Kind         events.Kind
	Participants []string
	Data         map[string]any
	Exclude      string
}

type recorder struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recorder) Emit(kind events.Kind, participants []string, data map[string]any, exclude string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{Kind: kind, Participants: participants, Data: data, Exclude: exclude})
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Kind
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type testEnv struct {
	Engine engine.Engine
	Events *recorder
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "ideaforge.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	rec := &recorder{}
	eng := engine.New(conn, engine.Options{
		Notifier:  rec,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		PublicURL: "http://forge.test",
	})
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Events: rec, Ctx: context.Background()}
}

func (env testEnv) register(t *testing.T, name string) domain.Agent {
	t.Helper()
	reg, err := env.Engine.Register(env.Ctx, name, "an agent that negotiates ideas")
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return reg.Agent
}

func (env testEnv) createIdea(t *testing.T, creator string) domain.Idea {
	t.Helper()
	idea, err := env.Engine.CreateIdea(env.Ctx, engine.CreateIdeaInput{
		CreatorID: creator,
		Title:     "Shared cache",
		Pitch:     "A cache both of us can agree on",
		Tags:      []string{"Infra"},
	})
	if err != nil {
		t.Fatalf("create idea: %v", err)
	}
	return idea
}

func (env testEnv) send(t *testing.T, ideaID, author, content string) engine.AppendResult {
	t.Helper()
	res, err := env.Engine.AppendMessage(env.Ctx, ideaID, author, content)
	if err != nil {
		t.Fatalf("append message: %v", err)
	}
	return res
}

func expectCode(t *testing.T, err error, want engine.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := engine.CodeOf(err); got != want {
		t.Fatalf("expected %s, got %q (%v)", want, got, err)
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	reg, err := env.Engine.Register(env.Ctx, "alpha", "first test agent")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.HasPrefix(reg.APIKey, "ideaforge_") || strings.HasPrefix(reg.APIKey, "ideaforge_claim_") {
		t.Fatalf("unexpected api key format %q", reg.APIKey)
	}
	if !strings.HasPrefix(reg.ClaimToken, "ideaforge_claim_") {
		t.Fatalf("unexpected claim token format %q", reg.ClaimToken)
	}
	if reg.ClaimURL != "http://forge.test/claim/"+reg.ClaimToken {
		t.Fatalf("claim url %q", reg.ClaimURL)
	}
	if reg.Agent.ClaimStatus != domain.ClaimPending {
		t.Fatalf("expected pending claim, got %s", reg.Agent.ClaimStatus)
	}

	agent, err := env.Engine.Authenticate(env.Ctx, reg.APIKey)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if agent.ID != reg.Agent.ID {
		t.Fatalf("authenticated as %s, want %s", agent.ID, reg.Agent.ID)
	}
	_, err = env.Engine.Authenticate(env.Ctx, "ideaforge_nope")
	expectCode(t, err, engine.CodeUnauthenticated)
	_, err = env.Engine.Authenticate(env.Ctx, reg.ClaimToken)
	expectCode(t, err, engine.CodeUnauthenticated)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name, desc string
		code       engine.Code
	}{
		{"ab", "long enough", engine.CodeInvalidInput},
		{"has space", "long enough", engine.CodeInvalidInput},
		{strings.Repeat("x", 31), "long enough", engine.CodeInvalidInput},
		{"valid_name", "shrt", engine.CodeInvalidInput},
		{"valid_name", strings.Repeat("d", 501), engine.CodeInvalidInput},
	}
	for _, tc := range cases {
		_, err := env.Engine.Register(env.Ctx, tc.name, tc.desc)
		expectCode(t, err, tc.code)
	}
	env.register(t, "Alpha")
	_, err := env.Engine.Register(env.Ctx, "alpha", "same name other case")
	expectCode(t, err, engine.CodeConflict)
}

func TestClaimIsOneTime(t *testing.T) {
	env := newTestEnv(t)
	reg, err := env.Engine.Register(env.Ctx, "claimer", "agent waiting for an owner")
	if err != nil {
		t.Fatal(err)
	}
	info, err := env.Engine.ClaimInfo(env.Ctx, reg.ClaimToken)
	if err != nil || info.ID != reg.Agent.ID {
		t.Fatalf("claim info: %v", err)
	}
	claimed, err := env.Engine.Claim(env.Ctx, reg.ClaimToken, "owner@example.com")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.ClaimStatus != domain.ClaimClaimed || claimed.OwnerEmail != "owner@example.com" {
		t.Fatalf("unexpected claimed agent %+v", claimed)
	}
	_, err = env.Engine.Claim(env.Ctx, reg.ClaimToken, "")
	expectCode(t, err, engine.CodeAlreadyClaimed)
	_, err = env.Engine.Claim(env.Ctx, "ideaforge_claim_unknown", "")
	expectCode(t, err, engine.CodeNotFound)
}

func TestCreateIdeaValidation(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.register(t, "alpha")
	_, err := env.Engine.CreateIdea(env.Ctx, engine.CreateIdeaInput{CreatorID: alpha.ID, Title: " X ", Pitch: "a long enough pitch"})
	expectCode(t, err, engine.CodeInvalidInput)
	_, err = env.Engine.CreateIdea(env.Ctx, engine.CreateIdeaInput{CreatorID: alpha.ID, Title: "Fine title", Pitch: "too short"})
	expectCode(t, err, engine.CodeInvalidInput)

	tags := []string{" Go ", "", "SQL"}
	for i := 0; i < 12; i++ {
		tags = append(tags, "t")
	}
	idea, err := env.Engine.CreateIdea(env.Ctx, engine.CreateIdeaInput{
		CreatorID: alpha.ID,
		Title:     "  Title  ",
		Pitch:     "a long enough pitch",
		Tags:      tags,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if idea.Title != "Title" {
		t.Fatalf("title not normalized: %q", idea.Title)
	}
	if len(idea.Tags) != 10 || idea.Tags[0] != "go" || idea.Tags[1] != "sql" {
		t.Fatalf("unexpected tags %v", idea.Tags)
	}
	if idea.Status != domain.StatusOpen || len(idea.Participants) != 1 || idea.Participants[0] != alpha.ID {
		t.Fatalf("unexpected new idea %+v", idea)
	}
	if idea.FinalSpec != nil {
		t.Fatalf("open idea must not carry a final spec")
	}
}

func TestAutoJoin(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.register(t, "alpha")
	beta := env.register(t, "beta")
	idea := env.createIdea(t, alpha.ID)

	res := env.send(t, idea.ID, beta.ID, "I would like to build this with you")
	if !res.Joined {
		t.Fatalf("expected join")
	}
	if res.Idea.Status != domain.StatusNegotiating {
		t.Fatalf("expected negotiating, got %s", res.Idea.Status)
	}
	if len(res.Idea.Participants) != 2 || res.Idea.Participants[0] != alpha.ID || res.Idea.Participants[1] != beta.ID {
		t.Fatalf("unexpected participants %v", res.Idea.Participants)
	}
	if res.Idea.MessageCount != 1 || res.Idea.LastMessageAt == nil {
		t.Fatalf("ledger counters not updated: %+v", res.Idea)
	}
	kinds := env.Events.kinds()
	want := []events.Kind{events.KindMessageCreated, events.KindIdeaJoined, events.KindIdeaStatusChanged}
	if len(kinds) != len(want) {
		t.Fatalf("events %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events %v, want %v", kinds, want)
		}
	}
	if env.Events.events[0].Exclude != beta.ID {
		t.Fatalf("message.created should exclude its author")
	}

	env.Events.reset()
	res = env.send(t, idea.ID, alpha.ID, "Welcome aboard")
	if res.Joined || res.Idea.Status != domain.StatusNegotiating {
		t.Fatalf("participant message must not change membership")
	}
	if k := env.Events.kinds(); len(k) != 1 || k[0] != events.KindMessageCreated {
		t.Fatalf("expected only message.created, got %v", k)
	}
}

func TestSoleCreatorMayMessageOpenIdea(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.register(t, "alpha")
	idea := env.createIdea(t, alpha.ID)
	res := env.send(t, idea.ID, alpha.ID, "notes to self")
	if res.Joined || res.Idea.Status != domain.StatusOpen || len(res.Idea.Participants) != 1 {
		t.Fatalf("creator message must leave idea open: %+v", res.Idea)
	}
}

func TestThirdAgentForbidden(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.register(t, "alpha")
	beta := env.register(t, "beta")
	gamma := env.register(t, "gamma")
	idea := env.createIdea(t, alpha.ID)
	env.send(t, idea.ID, beta.ID, "joining")
	_, err := env.Engine.AppendMessage(env.Ctx, idea.ID, gamma.ID, "me too")
	expectCode(t, err, engine.CodeForbidden)
	_, err = env.Engine.AppendMessage(env.Ctx, "missing", gamma.ID, "hello")
	expectCode(t, err, engine.CodeNotFound)
	_, err = env.Engine.AppendMessage(env.Ctx, idea.ID, beta.ID, "   ")
	expectCode(t, err, engine.CodeInvalidInput)
	_, err = env.Engine.AppendMessage(env.Ctx, idea.ID, beta.ID, strings.Repeat("m", 5001))
	expectCode(t, err, engine.CodeInvalidInput)
}

func TestLockPreconditions(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.register(t, "alpha")
	beta := env.register(t, "beta")
	gamma := env.register(t, "gamma")
	idea := env.createIdea(t, alpha.ID)
	spec := "# Spec\n\nWe build a shared cache."

	_, err := env.Engine.Lock(env.Ctx, idea.ID, alpha.ID, spec)
	expectCode(t, err, engine.CodeInsufficientParticipants)
	_, err = env.Engine.Lock(env.Ctx, "missing", alpha.ID, spec)
	expectCode(t, err, engine.CodeNotFound)

	env.send(t, idea.ID, beta.ID, "count me in")
	_, err = env.Engine.Lock(env.Ctx, idea.ID, gamma.ID, spec)
	expectCode(t, err, engine.CodeForbidden)
	// alpha has not written anything yet even though the ledger is non-empty.
	_, err = env.Engine.Lock(env.Ctx, idea.ID, beta.ID, spec)
	expectCode(t, err, engine.CodeUnready)

	env.send(t, idea.ID, alpha.ID, "great")
	_, err = env.Engine.Lock(env.Ctx, idea.ID, beta.ID, "too short")
	expectCode(t, err, engine.CodeInvalidInput)

	got, err := env.Engine.GetIdea(env.Ctx, idea.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusNegotiating || got.FinalSpec != nil {
		t.Fatalf("failed locks must not mutate the idea: %+v", got)
	}
}

func TestNegotiationEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.register(t, "alpha")
	beta := env.register(t, "beta")
	idea, err := env.Engine.CreateIdea(env.Ctx, engine.CreateIdeaInput{CreatorID: alpha.ID, Title: "XYZ", Pitch: "three letter title idea"})
	if err != nil {
		t.Fatal(err)
	}
	env.send(t, idea.ID, beta.ID, "let us do it")
	env.send(t, idea.ID, alpha.ID, "agreed on scope")
	env.Events.reset()

	spec := "## Final\n\n- cache\n- eviction"
	locked, err := env.Engine.Lock(env.Ctx, idea.ID, alpha.ID, spec)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if locked.Status != domain.StatusAgreed || locked.FinalSpec == nil || *locked.FinalSpec != spec {
		t.Fatalf("unexpected locked idea %+v", locked)
	}
	kinds := env.Events.kinds()
	if len(kinds) != 2 || kinds[0] != events.KindIdeaLocked || kinds[1] != events.KindIdeaStatusChanged {
		t.Fatalf("unexpected lock events %v", kinds)
	}
	if env.Events.events[0].Exclude != alpha.ID {
		t.Fatalf("idea.locked should exclude the locker")
	}

	for _, author := range []string{alpha.ID, beta.ID} {
		_, err := env.Engine.AppendMessage(env.Ctx, idea.ID, author, "one more thing")
		expectCode(t, err, engine.CodeTerminal)
	}
	outsider := env.register(t, "gamma")
	_, err = env.Engine.AppendMessage(env.Ctx, idea.ID, outsider.ID, "hello")
	expectCode(t, err, engine.CodeTerminal)
	_, err = env.Engine.Lock(env.Ctx, idea.ID, beta.ID, "a different final spec")
	expectCode(t, err, engine.CodeTerminal)

	_, first, err := env.Engine.FinalSpec(env.Ctx, idea.ID)
	if err != nil {
		t.Fatal(err)
	}
	_, second, err := env.Engine.FinalSpec(env.Ctx, idea.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first != spec || second != first {
		t.Fatalf("final spec changed between reads: %q vs %q", first, second)
	}
}

func TestConcurrentJoinAdmitsOne(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.register(t, "alpha")
	idea := env.createIdea(t, alpha.ID)
	var joiners []domain.Agent
	for _, name := range []string{"j1", "j2", "j3", "j4", "j5", "j6"} {
		joiners = append(joiners, env.register(t, "joiner_"+name))
	}

	start := make(chan struct{})
	errs := make([]error, len(joiners))
	var wg sync.WaitGroup
	for i, a := range joiners {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			<-start
			_, errs[i] = env.Engine.AppendMessage(env.Ctx, idea.ID, id, "pick me")
		}(i, a.ID)
	}
	close(start)
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch engine.CodeOf(err) {
		case "":
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ok++
		case engine.CodeFull, engine.CodeForbidden:
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one join, got %d", ok)
	}
	got, err := env.Engine.GetIdea(env.Ctx, idea.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Participants) != 2 || got.MessageCount != 1 || got.Status != domain.StatusNegotiating {
		t.Fatalf("unexpected idea after race %+v", got)
	}
}

func TestConcurrentLockSucceedsOnce(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.register(t, "alpha")
	beta := env.register(t, "beta")
	idea := env.createIdea(t, alpha.ID)
	env.send(t, idea.ID, beta.ID, "joining")
	env.send(t, idea.ID, alpha.ID, "hello")

	start := make(chan struct{})
	errs := make([]error, 2)
	specs := []string{"spec written by alpha", "spec written by beta"}
	var wg sync.WaitGroup
	for i, id := range []string{alpha.ID, beta.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			<-start
			_, errs[i] = env.Engine.Lock(env.Ctx, idea.ID, id, specs[i])
		}(i, id)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		if c := engine.CodeOf(err); c != engine.CodeTerminal && c != engine.CodeConflict {
			t.Fatalf("unexpected loser error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected one winning lock, got %d", winners)
	}
	_, spec, err := env.Engine.FinalSpec(env.Ctx, idea.ID)
	if err != nil {
		t.Fatal(err)
	}
	if spec != specs[0] && spec != specs[1] {
		t.Fatalf("unexpected final spec %q", spec)
	}
}

func TestListMessagesPagination(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.register(t, "alpha")
	beta := env.register(t, "beta")
	idea := env.createIdea(t, alpha.ID)
	for i := 0; i < 5; i++ {
		author := alpha.ID
		if i%2 == 0 {
			author = beta.ID
		}
		env.send(t, idea.ID, author, "message "+string(rune('a'+i)))
	}
	page1, p, err := env.Engine.ListMessages(env.Ctx, idea.ID, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page1) != 2 || p.Total != 5 || !p.HasMore {
		t.Fatalf("unexpected first page %v %+v", page1, p)
	}
	if page1[0].Content != "message a" || page1[1].Content != "message b" {
		t.Fatalf("ledger out of order: %q %q", page1[0].Content, page1[1].Content)
	}
	if page1[0].AuthorName != "beta" {
		t.Fatalf("expected author name, got %q", page1[0].AuthorName)
	}
	last, p, err := env.Engine.ListMessages(env.Ctx, idea.ID, 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 1 || p.HasMore || last[0].Content != "message e" {
		t.Fatalf("unexpected last page %v %+v", last, p)
	}
	_, p, err = env.Engine.ListMessages(env.Ctx, idea.ID, 1000, -3)
	if err != nil {
		t.Fatal(err)
	}
	if p.Limit != engine.MaxPageSize || p.Offset != 0 {
		t.Fatalf("pagination not clamped: %+v", p)
	}
	n, err := env.Engine.ContributionCount(env.Ctx, idea.ID, beta.ID)
	if err != nil || n != 3 {
		t.Fatalf("beta contributions = %d, %v", n, err)
	}
}

func TestInbox(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.register(t, "alpha")
	beta := env.register(t, "beta")
	gamma := env.register(t, "gamma")

	waiting := env.createIdea(t, alpha.ID)
	env.send(t, waiting.ID, beta.ID, "your turn alpha")

	ready := env.createIdea(t, alpha.ID)
	env.send(t, ready.ID, beta.ID, "joining")
	env.send(t, ready.ID, alpha.ID, "replied")

	done := env.createIdea(t, alpha.ID)
	env.send(t, done.ID, beta.ID, "joining")
	env.send(t, done.ID, alpha.ID, "replied")
	if _, err := env.Engine.Lock(env.Ctx, done.ID, alpha.ID, "final agreed spec"); err != nil {
		t.Fatal(err)
	}
	env.createIdea(t, gamma.ID)

	sum, err := env.Engine.Inbox(env.Ctx, alpha.ID)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if sum.OpenIdeas != 1 {
		t.Fatalf("open ideas = %d, want 1", sum.OpenIdeas)
	}
	if sum.NeedsResponse != 1 || sum.ReadyToLock != 1 || sum.AgreedIdeas != 1 || len(sum.MyIdeas) != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	for _, item := range sum.MyIdeas {
		switch item.ID {
		case waiting.ID:
			if !item.NeedsResponse || item.ReadyToLock || item.LastMessageAuthor != beta.ID {
				t.Fatalf("unexpected waiting item %+v", item)
			}
		case ready.ID:
			if item.NeedsResponse || !item.ReadyToLock {
				t.Fatalf("unexpected ready item %+v", item)
			}
		default:
			t.Fatalf("unexpected idea in inbox %s", item.ID)
		}
	}

	sum, err = env.Engine.Inbox(env.Ctx, gamma.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.OpenIdeas != 0 || len(sum.MyIdeas) != 1 || sum.MyIdeas[0].NeedsResponse {
		t.Fatalf("unexpected gamma summary %+v", sum)
	}
}

func TestUpdateProfileWebhook(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.register(t, "alpha")
	hook := &domain.WebhookSubscription{URL: "https://hooks.example.com/forge", Secret: "s3cret", Events: []string{"message.created", "idea.locked"}}

	agent, err := env.Engine.UpdateProfile(env.Ctx, alpha.ID, engine.ProfileUpdate{Webhook: engine.OptionalWebhook{Set: true, Value: hook}})
	if err != nil {
		t.Fatalf("set webhook: %v", err)
	}
	if agent.Webhook == nil || agent.Webhook.URL != hook.URL || len(agent.Webhook.Events) != 2 {
		t.Fatalf("webhook not stored: %+v", agent.Webhook)
	}

	desc := "a new and improved description"
	agent, err = env.Engine.UpdateProfile(env.Ctx, alpha.ID, engine.ProfileUpdate{Description: &desc, Metadata: map[string]any{"lang": "go"}})
	if err != nil {
		t.Fatal(err)
	}
	if agent.Webhook == nil || agent.Description != desc || agent.Metadata["lang"] != "go" {
		t.Fatalf("omitted webhook must be left unchanged: %+v", agent)
	}

	subs, err := env.Engine.Repo.Subscribers(env.Ctx, []string{alpha.ID})
	if err != nil || len(subs) != 1 || subs[0].Secret != "s3cret" || !subs[0].Wants(events.KindIdeaLocked) {
		t.Fatalf("unexpected subscribers %+v %v", subs, err)
	}

	bad := []*domain.WebhookSubscription{
		{URL: "ftp://example.com", Events: []string{"message.created"}},
		{URL: "https://example.com", Events: nil},
		{URL: "https://example.com", Events: []string{"idea.deleted"}},
		{URL: "https://example.com", Secret: strings.Repeat("s", 257), Events: []string{"message.created"}},
	}
	for _, b := range bad {
		_, err := env.Engine.UpdateProfile(env.Ctx, alpha.ID, engine.ProfileUpdate{Webhook: engine.OptionalWebhook{Set: true, Value: b}})
		expectCode(t, err, engine.CodeInvalidInput)
	}

	agent, err = env.Engine.UpdateProfile(env.Ctx, alpha.ID, engine.ProfileUpdate{Webhook: engine.OptionalWebhook{Set: true}})
	if err != nil {
		t.Fatal(err)
	}
	if agent.Webhook != nil {
		t.Fatalf("explicit null must remove the webhook")
	}
	subs, err = env.Engine.Repo.Subscribers(env.Ctx, []string{alpha.ID})
	if err != nil || len(subs) != 0 {
		t.Fatalf("expected no subscribers, got %+v %v", subs, err)
	}
}

func TestListIdeasFilters(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.register(t, "alpha")
	beta := env.register(t, "beta")
	a := env.createIdea(t, alpha.ID)
	if _, err := env.Engine.CreateIdea(env.Ctx, engine.CreateIdeaInput{CreatorID: beta.ID, Title: "Other idea", Pitch: "something else entirely", Tags: []string{"ml"}}); err != nil {
		t.Fatal(err)
	}
	env.send(t, a.ID, beta.ID, "joining")

	items, page, err := env.Engine.ListIdeas(env.Ctx, engine.IdeaListOptions{Status: domain.StatusNegotiating})
	if err != nil || len(items) != 1 || items[0].ID != a.ID || page.Total != 1 {
		t.Fatalf("status filter: %v %+v %v", items, page, err)
	}
	items, _, err = env.Engine.ListIdeas(env.Ctx, engine.IdeaListOptions{Tag: "INFRA"})
	if err != nil || len(items) != 1 || items[0].ID != a.ID {
		t.Fatalf("tag filter: %v %v", items, err)
	}
	items, _, err = env.Engine.ListIdeas(env.Ctx, engine.IdeaListOptions{Mine: true, AgentID: alpha.ID})
	if err != nil || len(items) != 1 || items[0].ID != a.ID {
		t.Fatalf("mine filter: %v %v", items, err)
	}
	items, _, err = env.Engine.ListIdeas(env.Ctx, engine.IdeaListOptions{Mine: true, AgentID: beta.ID})
	if err != nil || len(items) != 2 {
		t.Fatalf("beta should see both ideas: %v %v", items, err)
	}
	_, _, err = env.Engine.ListIdeas(env.Ctx, engine.IdeaListOptions{Status: "closed"})
	expectCode(t, err, engine.CodeInvalidInput)
}
