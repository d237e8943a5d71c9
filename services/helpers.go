package services

import (
	"errors"
	"time"

	"github.com/Dosada05/fractal-system/events"
	"github.com/Dosada05/fractal-system/repositories"
)

// EventPublisher is the part of events.EventBus the engine needs.
type EventPublisher interface {
	PublishAsync(eventType events.EventType, evt events.Event) bool
}

type noopPublisher struct{}

func (noopPublisher) PublishAsync(events.EventType, events.Event) bool { return true }

// Clock returns the current time; tests pin it.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

func publish(p EventPublisher, eventType events.EventType, fractalID int, data any) {
	p.PublishAsync(eventType, events.NewEvent(eventType, fractalID, data))
}

// mapRepoError turns repository sentinels into the service-level errors the
// HTTP layer knows about. Unknown errors pass through unchanged.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrFractalNotFound):
		return ErrFractalNotFound
	case errors.Is(err, repositories.ErrFractalNameConflict):
		return ErrFractalNameConflict
	case errors.Is(err, repositories.ErrMemberNotFound):
		return ErrMemberNotFound
	case errors.Is(err, repositories.ErrMembershipNotFound):
		return ErrNotFractalMember
	case errors.Is(err, repositories.ErrRoundNotFound):
		return ErrRoundNotFound
	case errors.Is(err, repositories.ErrRoundAlreadyClosed):
		return ErrRoundClosed
	case errors.Is(err, repositories.ErrGroupNotFound):
		return ErrGroupNotFound
	case errors.Is(err, repositories.ErrGroupMembershipNotFound):
		return ErrNotGroupMember
	case errors.Is(err, repositories.ErrProposalNotFound):
		return ErrProposalNotFound
	case errors.Is(err, repositories.ErrCommentNotFound):
		return ErrCommentNotFound
	case errors.Is(err, repositories.ErrMemberInvalidRef),
		errors.Is(err, repositories.ErrProposalInvalidRef),
		errors.Is(err, repositories.ErrCommentInvalidRef),
		errors.Is(err, repositories.ErrVoteInvalidRef):
		return ErrNotFound
	}
	return err
}
