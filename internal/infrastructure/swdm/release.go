package swdm

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/pdmworks/cadbridge/internal/core/domain"
)

// ReleaseAll force-releases every outstanding native reference: it closes
// straggler sessions, clears the open/recent bookkeeping, drops the
// resolver's root reference and runs two collection rounds to flush native
// references held by pending finalizers. It does not re-initialize; the
// next operation lazily re-resolves. Intended for use immediately before a
// filesystem move of a directory holding recently-touched documents.
func (e *Engine) ReleaseAll(ctx context.Context) (bool, error) {
	e.mu.Lock()
	stragglers := make([]*Session, 0, len(e.open))
	for s := range e.open {
		stragglers = append(stragglers, s)
	}
	e.open = make(map[*Session]struct{})
	recent := len(e.recent)
	e.recent = nil
	e.released++
	e.mu.Unlock()

	for _, s := range stragglers {
		if err := s.Close(); err != nil && !domain.IsKind(err, domain.ErrSessionClosed) {
			slog.Warn("release_session_close_failed", "path", s.Path(), "error", err)
		}
	}

	e.resolver.Release()

	runtime.GC()
	runtime.GC()

	slog.Info("engine_handles_released", "sessions_closed", len(stragglers), "recent_paths", recent)
	return true, nil
}
