// Package snapshot periodically persists the ledger and attestation stores
// and restores them on startup.
package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	dErrors "lexaudit/pkg/domain-errors"
	audit "lexaudit/pkg/platform/audit"
	"lexaudit/pkg/platform/sentinel"
)

// Store persists named blobs. Load returns sentinel.ErrNotFound for a part
// that was never saved.
type Store interface {
	Save(ctx context.Context, parts map[string][]byte) error
	Load(ctx context.Context, name string) ([]byte, error)
}

// Part is anything that round-trips through Export and Import: the ledger,
// the threshold coordinator and the witness registry.
type Part interface {
	Export() ([]byte, error)
	Import(ctx context.Context, data []byte) error
}

type namedPart struct {
	name string
	part Part
}

// Snapshotter saves and restores registered parts. Parts are restored in
// registration order.
type Snapshotter struct {
	store   Store
	parts   []namedPart
	logger  *slog.Logger
	auditor audit.Emitter
}

type Option func(*Snapshotter)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Snapshotter) {
		s.logger = logger
	}
}

func WithAuditEmitter(e audit.Emitter) Option {
	return func(s *Snapshotter) {
		s.auditor = e
	}
}

func New(store Store, opts ...Option) *Snapshotter {
	s := &Snapshotter{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a part under name.
func (s *Snapshotter) Register(name string, part Part) {
	s.parts = append(s.parts, namedPart{name: name, part: part})
}

// Save exports every part and writes them together.
func (s *Snapshotter) Save(ctx context.Context) error {
	blobs := make(map[string][]byte, len(s.parts))
	for _, p := range s.parts {
		data, err := p.part.Export()
		if err != nil {
			return err
		}
		blobs[p.name] = data
	}
	if err := s.store.Save(ctx, blobs); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "save snapshot")
	}
	s.logger.InfoContext(ctx, "snapshot saved", "parts", len(blobs))
	s.emit(ctx, audit.Event{Action: audit.EventSnapshotSaved})
	return nil
}

// Restore imports every part that has a stored snapshot and returns how many
// were restored. Missing parts are skipped. An import failure, including a
// tampered ledger, stops the restore.
func (s *Snapshotter) Restore(ctx context.Context) (int, error) {
	restored := 0
	for _, p := range s.parts {
		data, err := s.store.Load(ctx, p.name)
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.InfoContext(ctx, "no snapshot for part", "part", p.name)
			continue
		}
		if err != nil {
			return restored, dErrors.Wrap(err, dErrors.CodeStorage, "load snapshot "+p.name)
		}
		if err := p.part.Import(ctx, data); err != nil {
			return restored, err
		}
		restored++
	}
	if restored == 0 {
		s.emit(ctx, audit.Event{Action: audit.EventSnapshotRestoreEmpty})
	}
	return restored, nil
}

// Run saves every interval until ctx is done. Save failures are logged and
// retried on the next tick.
func (s *Snapshotter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Save(ctx); err != nil {
				s.logger.ErrorContext(ctx, "periodic snapshot failed", "error", err)
			}
		}
	}
}

func (s *Snapshotter) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "snapshot audit failed",
			"action", event.Action,
			"error", err,
		)
	}
}
