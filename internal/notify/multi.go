package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
	"github.com/tbourn/go-rescue-dispatch/internal/services"
)

// Multi sends every command to a primary notifier and then to each mirror.
//
// The primary owns the references: its AnnounceCase and OpenThread results
// are returned, and mirrors see the case with those ids filled in. When the
// primary announces without a reference, Multi mints the case id itself so
// mirrors and the lifecycle agree on it. Mirror
// failures on those two calls are only logged, since the case already exists
// on the primary. For the remaining commands all errors are joined.
type Multi struct {
	Primary services.Notifier
	Mirrors []services.Notifier
}

var _ services.Notifier = (*Multi)(nil)

// NewMulti composes primary with mirrors. Nil mirrors are skipped.
func NewMulti(primary services.Notifier, mirrors ...services.Notifier) *Multi {
	m := &Multi{Primary: primary}
	for _, n := range mirrors {
		if n != nil {
			m.Mirrors = append(m.Mirrors, n)
		}
	}
	return m
}

func (m *Multi) AnnounceCase(ctx context.Context, c domain.Case, form domain.RequestForm) (string, error) {
	ref, err := m.Primary.AnnounceCase(ctx, c, form)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(ref) == "" {
		ref = uuid.NewString()
	}
	mirrored := c
	mirrored.ID = ref
	for _, n := range m.Mirrors {
		if _, err := n.AnnounceCase(ctx, mirrored, form); err != nil {
			log.Warn().Err(err).Str("ref", ref).Msg("mirror announce failed")
		}
	}
	return ref, nil
}

func (m *Multi) OpenThread(ctx context.Context, c domain.Case) (string, error) {
	ref, err := m.Primary.OpenThread(ctx, c)
	if err != nil {
		return "", err
	}
	mirrored := c
	mirrored.ThreadID = ref
	for _, n := range m.Mirrors {
		if _, err := n.OpenThread(ctx, mirrored); err != nil {
			log.Warn().Err(err).Str("case_id", c.ID).Msg("mirror open thread failed")
		}
	}
	return ref, nil
}

func (m *Multi) UpdateAnnouncement(ctx context.Context, c domain.Case, state domain.RenderState) error {
	return m.each(func(n services.Notifier) error { return n.UpdateAnnouncement(ctx, c, state) })
}

func (m *Multi) NotifyThread(ctx context.Context, c domain.Case, message string) error {
	return m.each(func(n services.Notifier) error { return n.NotifyThread(ctx, c, message) })
}

func (m *Multi) ArchiveThread(ctx context.Context, c domain.Case) error {
	return m.each(func(n services.Notifier) error { return n.ArchiveThread(ctx, c) })
}

func (m *Multi) each(fn func(services.Notifier) error) error {
	errs := []error{fn(m.Primary)}
	for _, n := range m.Mirrors {
		errs = append(errs, fn(n))
	}
	return errors.Join(errs...)
}
