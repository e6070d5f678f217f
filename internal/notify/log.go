package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
	"github.com/tbourn/go-rescue-dispatch/internal/services"
)

// LogNotifier logs every command and mints random references. It never fails.
type LogNotifier struct {
	Logger *zerolog.Logger
}

var _ services.Notifier = (*LogNotifier)(nil)

// NewLogNotifier returns a LogNotifier writing to l, or to the global logger
// when l is nil.
func NewLogNotifier(l *zerolog.Logger) *LogNotifier {
	return &LogNotifier{Logger: l}
}

func (n *LogNotifier) log() *zerolog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return &log.Logger
}

func (n *LogNotifier) AnnounceCase(_ context.Context, c domain.Case, form domain.RequestForm) (string, error) {
	ref := uuid.NewString()
	n.log().Info().
		Str("ref", ref).
		Str("requester_id", c.RequesterID).
		Str("galaxy_system", form.GalaxySystem).
		Str("time_remaining", form.TimeRemaining).
		Msg("case announced")
	return ref, nil
}

func (n *LogNotifier) OpenThread(_ context.Context, c domain.Case) (string, error) {
	ref := uuid.NewString()
	n.log().Info().
		Str("case_id", c.ID).
		Str("thread_id", ref).
		Str("name", ThreadName(c)).
		Msg("thread opened")
	return ref, nil
}

func (n *LogNotifier) UpdateAnnouncement(_ context.Context, c domain.Case, state domain.RenderState) error {
	p := Present(c, state, "")
	n.log().Info().
		Str("case_id", c.ID).
		Str("title", p.Title).
		Bool("controls_disabled", state.ControlsDisabled).
		Msg("announcement updated")
	return nil
}

func (n *LogNotifier) NotifyThread(_ context.Context, c domain.Case, message string) error {
	n.log().Info().
		Str("case_id", c.ID).
		Str("thread_id", c.ThreadID).
		Str("message", message).
		Msg("thread message")
	return nil
}

func (n *LogNotifier) ArchiveThread(_ context.Context, c domain.Case) error {
	n.log().Info().
		Str("case_id", c.ID).
		Str("thread_id", c.ThreadID).
		Msg("thread archived")
	return nil
}
