package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ideaforge/internal/domain"
	"ideaforge/internal/events"
	"ideaforge/internal/repo"
)

var (
	errTerminal = newError(CodeTerminal, "idea is agreed", "this idea has been finalized and no longer accepts changes")
	errFull     = newError(CodeFull, "idea is full", "this idea already has 2 participants")
)

type CreateIdeaInput struct {
	CreatorID string
	Title     string
	Pitch     string
	Tags      []string
}

// CreateIdea opens a new negotiation with the creator as sole participant.
func (e Engine) CreateIdea(ctx context.Context, in CreateIdeaInput) (domain.Idea, error) {
	title := normalizeText(in.Title)
	if err := checkLength("title", title, 3, 200); err != nil {
		return domain.Idea{}, err
	}
	pitch := normalizeText(in.Pitch)
	if err := checkLength("pitch", pitch, 10, 2000); err != nil {
		return domain.Idea{}, err
	}
	now := e.timestamp()
	idea := domain.Idea{
		ID:           uuid.NewString(),
		Title:        title,
		Pitch:        pitch,
		Tags:         normalizeTags(in.Tags),
		Status:       domain.StatusOpen,
		CreatedBy:    in.CreatorID,
		Participants: []string{in.CreatorID},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Idea{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertIdea(ctx, tx, idea); err != nil {
		return domain.Idea{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Idea{}, err
	}
	e.Logger.Info("idea created", "idea_id", idea.ID, "creator_id", in.CreatorID)
	return idea, nil
}

// AppendResult is the committed outcome of AppendMessage.
type AppendResult struct {
	Message domain.Message
	Idea    domain.Idea
	// Joined is true when this message admitted the author as second participant.
	Joined bool
}

// AppendMessage adds content to an idea's ledger. A non-participant's first
// message to an open idea admits them as second participant and moves the
// idea to negotiating.
func (e Engine) AppendMessage(ctx context.Context, ideaID, authorID, content string) (AppendResult, error) {
	idea, err := e.loadIdea(ctx, ideaID)
	if err != nil {
		return AppendResult{}, err
	}
	if idea.Status == domain.StatusAgreed {
		return AppendResult{}, errTerminal
	}
	content = normalizeText(content)
	if err := checkLength("content", content, 1, 5000); err != nil {
		return AppendResult{}, err
	}
	join := false
	if !idea.HasParticipant(authorID) {
		if idea.Status != domain.StatusOpen {
			return AppendResult{}, newError(CodeForbidden, "not a participant", "you are not part of this idea negotiation")
		}
		if len(idea.Participants) >= 2 {
			return AppendResult{}, errFull
		}
		join = true
	}
	if e.beforeJoin != nil && join {
		e.beforeJoin()
	}

	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return AppendResult{}, err
	}
	defer tx.Rollback()
	author, err := e.Repo.GetAgent(ctx, tx, authorID)
	if err != nil {
		return AppendResult{}, fmt.Errorf("load author: %w", err)
	}
	if join {
		ok, err := e.Repo.JoinIdea(ctx, tx, ideaID, authorID, now)
		if err != nil {
			return AppendResult{}, err
		}
		if !ok {
			current, err := e.Repo.GetIdea(ctx, tx, ideaID)
			if err != nil {
				return AppendResult{}, err
			}
			switch {
			case current.Status == domain.StatusAgreed:
				return AppendResult{}, errTerminal
			case !current.HasParticipant(authorID):
				return AppendResult{}, errFull
			}
			// A concurrent message from the same author already joined.
			join = false
		}
	}
	msg := domain.Message{
		ID:         uuid.NewString(),
		IdeaID:     ideaID,
		AuthorID:   authorID,
		AuthorName: author.Name,
		Content:    content,
		CreatedAt:  now,
	}
	if err := e.Repo.InsertMessage(ctx, tx, msg); err != nil {
		return AppendResult{}, fmt.Errorf("insert message: %w", err)
	}
	ok, err := e.Repo.RecordMessage(ctx, tx, ideaID, now)
	if err != nil {
		return AppendResult{}, err
	}
	if !ok {
		return AppendResult{}, errTerminal
	}
	updated, err := e.Repo.GetIdea(ctx, tx, ideaID)
	if err != nil {
		return AppendResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return AppendResult{}, err
	}

	e.emit(events.KindMessageCreated, updated.Participants, map[string]any{
		"idea_id":     ideaID,
		"message_id":  msg.ID,
		"author_id":   authorID,
		"author_name": author.Name,
		"content":     content,
	}, authorID)
	if join {
		e.Logger.Info("agent joined idea", "idea_id", ideaID, "agent_id", authorID)
		e.emit(events.KindIdeaJoined, updated.Participants, map[string]any{
			"idea_id":           ideaID,
			"idea_title":        updated.Title,
			"joined_agent_id":   authorID,
			"joined_agent_name": author.Name,
		}, "")
		e.emit(events.KindIdeaStatusChanged, updated.Participants, map[string]any{
			"idea_id":    ideaID,
			"idea_title": updated.Title,
			"from":       domain.StatusOpen,
			"to":         domain.StatusNegotiating,
		}, "")
	}
	return AppendResult{Message: msg, Idea: updated, Joined: join}, nil
}

// Lock freezes the final spec of a negotiating idea once both participants
// have contributed. Of two concurrent lock attempts at most one succeeds.
func (e Engine) Lock(ctx context.Context, ideaID, requesterID, finalSpec string) (domain.Idea, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Idea{}, err
	}
	defer tx.Rollback()
	idea, err := e.Repo.GetIdea(ctx, tx, ideaID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Idea{}, errIdeaNotFound
	}
	if err != nil {
		return domain.Idea{}, err
	}
	if !idea.HasParticipant(requesterID) {
		return domain.Idea{}, newError(CodeForbidden, "not a participant", "only participants can lock an idea")
	}
	if len(idea.Participants) < 2 {
		return domain.Idea{}, newError(CodeInsufficientParticipants, "not enough participants", "an idea needs 2 participants before it can be locked")
	}
	switch idea.Status {
	case domain.StatusAgreed:
		return domain.Idea{}, errTerminal
	case domain.StatusOpen:
		return domain.Idea{}, newError(CodeNotReady, "idea is not negotiating", "negotiation must start before locking")
	}
	for _, p := range idea.Participants {
		n, err := e.Repo.CountMessagesByAuthor(ctx, tx, ideaID, p)
		if err != nil {
			return domain.Idea{}, err
		}
		if n == 0 {
			return domain.Idea{}, newError(CodeUnready, "not all participants have contributed", "both participants must send at least one message before locking")
		}
	}
	spec := normalizeText(finalSpec)
	if err := checkLength("final_spec", spec, 10, 10000); err != nil {
		return domain.Idea{}, err
	}
	now := e.timestamp()
	ok, err := e.Repo.LockIdea(ctx, tx, ideaID, spec, now)
	if err != nil {
		return domain.Idea{}, err
	}
	if !ok {
		return domain.Idea{}, newError(CodeConflict, "idea changed concurrently", "reload the idea and retry")
	}
	if err := tx.Commit(); err != nil {
		return domain.Idea{}, err
	}
	idea.Status = domain.StatusAgreed
	idea.FinalSpec = &spec
	idea.UpdatedAt = now
	e.Logger.Info("idea locked", "idea_id", ideaID, "agent_id", requesterID)

	e.emit(events.KindIdeaLocked, idea.Participants, map[string]any{
		"idea_id":    ideaID,
		"idea_title": idea.Title,
		"locked_by":  requesterID,
		"final_spec": spec,
	}, requesterID)
	e.emit(events.KindIdeaStatusChanged, idea.Participants, map[string]any{
		"idea_id":    ideaID,
		"idea_title": idea.Title,
		"from":       domain.StatusNegotiating,
		"to":         domain.StatusAgreed,
	}, "")
	return idea, nil
}

func (e Engine) loadIdea(ctx context.Context, id string) (domain.Idea, error) {
	idea, err := e.Repo.GetIdea(ctx, nil, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Idea{}, errIdeaNotFound
	}
	return idea, err
}

// GetIdea loads one idea with its participants.
func (e Engine) GetIdea(ctx context.Context, id string) (domain.Idea, error) {
	return e.loadIdea(ctx, id)
}

// FinalSpec returns the locked specification of an agreed idea.
func (e Engine) FinalSpec(ctx context.Context, id string) (domain.Idea, string, error) {
	idea, err := e.loadIdea(ctx, id)
	if err != nil {
		return domain.Idea{}, "", err
	}
	if idea.Status != domain.StatusAgreed || idea.FinalSpec == nil {
		return idea, "", newError(CodeNotReady, "idea is not agreed", "the final spec exists only after the idea is locked")
	}
	return idea, *idea.FinalSpec, nil
}

type IdeaListOptions struct {
	Status string
	Tag    string
	// Mine restricts the list to ideas AgentID participates in.
	Mine    bool
	AgentID string
	Limit   int
	Offset  int
}

// ListIdeas pages through ideas, newest first.
func (e Engine) ListIdeas(ctx context.Context, opts IdeaListOptions) ([]domain.Idea, domain.Page, error) {
	switch opts.Status {
	case "", domain.StatusOpen, domain.StatusNegotiating, domain.StatusAgreed:
	default:
		return nil, domain.Page{}, newError(CodeInvalidInput, "invalid status", "status must be one of open, negotiating, agreed")
	}
	limit, offset := e.Page(opts.Limit, opts.Offset)
	f := repo.IdeaFilters{
		Status: opts.Status,
		Tag:    normalizeTagFilter(opts.Tag),
		Limit:  limit,
		Offset: offset,
	}
	if opts.Mine {
		f.ParticipantID = opts.AgentID
	}
	items, total, err := e.Repo.ListIdeas(ctx, f)
	if err != nil {
		return nil, domain.Page{}, err
	}
	return items, domain.NewPage(total, limit, offset), nil
}

func normalizeTagFilter(tag string) string {
	tags := normalizeTags([]string{tag})
	if len(tags) == 0 {
		return ""
	}
	return tags[0]
}

// Stats aggregates operator counters.
func (e Engine) Stats(ctx context.Context) (domain.Stats, error) {
	return e.Repo.Stats(ctx)
}
