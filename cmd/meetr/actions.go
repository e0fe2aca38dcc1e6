package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/christopherklint97/meetr/internal/draft"
	"github.com/christopherklint97/meetr/internal/fullhour"
	"github.com/christopherklint97/meetr/internal/optout"
	"github.com/christopherklint97/meetr/internal/store"
)

var errNoDrafter = errors.New("creating drafts needs Microsoft Graph; set graph.client_id and run 'meetr auth'")

// rescheduleActions carries out the reschedule dialog's choices. db may be
// nil, in which case drafts are not recorded.
type rescheduleActions struct {
	drafter draft.Drafter
	optouts *optout.Store
	db      *store.DB
	logger  *slog.Logger
}

func (r *rescheduleActions) CreateDraft(ctx context.Context, c fullhour.Candidate, msg draft.Message) (string, error) {
	if r.drafter == nil {
		return "", errNoDrafter
	}
	id, err := draft.CreateMessage(ctx, r.drafter, msg)
	if err != nil {
		r.logger.Error("failed to create draft", "subject", c.Entry.Subject, "error", err)
		return "", err
	}
	r.logger.Info("draft created", "subject", c.Entry.Subject, "to", msg.To, "id", id)

	if r.db != nil {
		_, err := r.db.InsertDraft(&store.Draft{
			StableID:  c.Entry.StableID,
			Subject:   c.Entry.Subject,
			Start:     c.LocalStart,
			Organizer: msg.To,
			DraftID:   id,
		})
		if err != nil {
			r.logger.Warn("recording draft in history", "error", err)
		}
	}
	return id, nil
}

func (r *rescheduleActions) OptOut(c fullhour.Candidate) error {
	err := r.optouts.Append(c.Entry.StableID, c.Entry.Subject, c.LocalStart)
	if errors.Is(err, optout.ErrEmptyID) {
		return fmt.Errorf("%q has no stable identifier and cannot be remembered", c.Entry.Subject)
	}
	if err != nil {
		r.logger.Error("failed to save opt-out", "subject", c.Entry.Subject, "error", err)
		return err
	}
	r.logger.Info("opted out of full-hour meeting", "subject", c.Entry.Subject, "id", c.Entry.StableID)
	return nil
}
