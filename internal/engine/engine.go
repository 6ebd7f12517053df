package engine

import (
	"database/sql"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"ideaforge/internal/events"
	"ideaforge/internal/repo"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Notifier events.Notifier
	Logger   *slog.Logger
	Now      func() time.Time
	// PublicURL prefixes claim links handed out at registration.
	PublicURL string
	PageSize  int
	MaxPage   int

	// beforeJoin runs between the snapshot read and the join transaction.
	beforeJoin func()
}

type Options struct {
	Notifier  events.Notifier
	Logger    *slog.Logger
	PublicURL string
	PageSize  int
	MaxPage   int
}

func New(db *sql.DB, opts Options) Engine {
	e := Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Notifier:  opts.Notifier,
		Logger:    opts.Logger,
		Now:       time.Now,
		PublicURL: strings.TrimRight(opts.PublicURL, "/"),
		PageSize:  opts.PageSize,
		MaxPage:   opts.MaxPage,
	}
	if e.Notifier == nil {
		e.Notifier = events.Nop{}
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) emit(kind events.Kind, participants []string, data map[string]any, exclude string) {
	if e.Notifier == nil {
		return
	}
	e.Notifier.Emit(kind, participants, data, exclude)
}

// Page clamps caller-supplied pagination: limit defaults when <= 0 and is
// capped, offset never goes negative.
func (e Engine) Page(limit, offset int) (int, int) {
	def, max := e.PageSize, e.MaxPage
	if def <= 0 {
		def = DefaultPageSize
	}
	if max <= 0 {
		max = MaxPageSize
	}
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// normalizeText drops invalid UTF-8 and control characters other than
// newline and tab, then trims surrounding whitespace. An encoded U+FFFD is
// valid text and is kept.
func normalizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func checkLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min || n > max {
		return invalidf("invalid "+field, "%s must be %d-%d characters", field, min, max)
	}
	return nil
}

const maxTags = 10

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(normalizeText(t))
		if t == "" {
			continue
		}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}
