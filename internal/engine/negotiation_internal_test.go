package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"ideaforge/internal/db"
	"ideaforge/internal/domain"
	"ideaforge/internal/migrate"
)

func newRaceEngine(t *testing.T) Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "race.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatal(err)
	}
	return New(conn, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

// releaseTogether makes n joiners read the open idea before any commits.
func releaseTogether(e *Engine, n int) {
	var arrived sync.WaitGroup
	arrived.Add(n)
	e.beforeJoin = func() {
		arrived.Done()
		arrived.Wait()
	}
}

func TestJoinRaceLoserIsFull(t *testing.T) {
	e := newRaceEngine(t)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"creator", "racer_one", "racer_two"} {
		reg, err := e.Register(ctx, name, "agent in a join race")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, reg.Agent.ID)
	}
	idea, err := e.CreateIdea(ctx, CreateIdeaInput{CreatorID: ids[0], Title: "Race", Pitch: "who joins first wins"})
	if err != nil {
		t.Fatal(err)
	}

	releaseTogether(&e, 2)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, id := range ids[1:] {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = e.AppendMessage(ctx, idea.ID, id, "joining")
		}(i, id)
	}
	wg.Wait()

	var full, ok int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case CodeOf(err) == CodeFull:
			full++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || full != 1 {
		t.Fatalf("expected one join and one Full, got ok=%d full=%d", ok, full)
	}
}

func TestSameAuthorConcurrentJoinAppendsBoth(t *testing.T) {
	e := newRaceEngine(t)
	ctx := context.Background()
	creator, err := e.Register(ctx, "creator", "agent that pitches")
	if err != nil {
		t.Fatal(err)
	}
	joiner, err := e.Register(ctx, "joiner", "agent that sends twice")
	if err != nil {
		t.Fatal(err)
	}
	idea, err := e.CreateIdea(ctx, CreateIdeaInput{CreatorID: creator.Agent.ID, Title: "Double", Pitch: "two messages at once"})
	if err != nil {
		t.Fatal(err)
	}

	releaseTogether(&e, 2)
	results := make([]AppendResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.AppendMessage(ctx, idea.ID, joiner.Agent.ID, "hello")
		}(i)
	}
	wg.Wait()

	joined := 0
	for i, err := range errs {
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if results[i].Joined {
			joined++
		}
	}
	if joined != 1 {
		t.Fatalf("expected exactly one join, got %d", joined)
	}
	e.beforeJoin = nil
	got, err := e.GetIdea(ctx, idea.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageCount != 2 || got.Status != domain.StatusNegotiating || len(got.Participants) != 2 {
		t.Fatalf("unexpected idea after double join %+v", got)
	}
	n, err := e.ContributionCount(ctx, idea.ID, joiner.Agent.ID)
	if err != nil || n != 2 {
		t.Fatalf("joiner contributions=%d err=%v", n, err)
	}
}

func TestNormalizeTextKeepsReplacementCharacter(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  caf\u00e9\u0000 ", "caf\u00e9"},
		{"broken \uFFFD glyph", "broken \uFFFD glyph"},
		{"bad\xffbyte", "badbyte"},
		{"line\nnext\tcol\r", "line\nnext\tcol"},
	}
	for _, c := range cases {
		if got := normalizeText(c.in); got != c.want {
			t.Fatalf("normalizeText(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
