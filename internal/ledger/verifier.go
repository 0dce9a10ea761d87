package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"lexaudit/internal/ledger/models"
	dErrors "lexaudit/pkg/domain-errors"
	audit "lexaudit/pkg/platform/audit"
	"lexaudit/pkg/platform/hashing"
)

var tracer = otel.Tracer("lexaudit/internal/ledger")

// minChunk is the smallest slice of records handed to one hashing goroutine.
const minChunk = 512

// TamperReason says which check a record failed.
type TamperReason string

const (
	ReasonHashMismatch TamperReason = "record_hash_mismatch"
	ReasonBrokenLink   TamperReason = "previous_hash_mismatch"
	ReasonTailMismatch TamperReason = "tail_hash_mismatch"
	ReasonCheckpoint   TamperReason = "checkpoint_mismatch"
)

// TamperError names the first record that failed verification. It is always
// returned wrapped in a CodeTamperDetected domain error.
type TamperError struct {
	RecordID uuid.UUID
	Position int
	Reason   TamperReason
}

func (e *TamperError) Error() string {
	return fmt.Sprintf("record %s at position %d: %s", e.RecordID, e.Position, e.Reason)
}

func tamper(r models.AuditRecord, pos int, reason TamperReason) error {
	return dErrors.Wrap(
		&TamperError{RecordID: r.ID, Position: pos, Reason: reason},
		dErrors.CodeTamperDetected,
		"integrity violation",
	)
}

// ChainVerifier checks records one at a time in chain order, so arbitrarily
// long ledgers can be verified from a stream without holding them in memory.
type ChainVerifier struct {
	hasher   hashing.Hasher
	prevHash string
	verified int
}

// NewChainVerifier starts at the genesis record.
func NewChainVerifier(h hashing.Hasher) *ChainVerifier {
	return &ChainVerifier{hasher: h}
}

// ResumeChainVerifier continues after the verified prefix described by cp.
func ResumeChainVerifier(h hashing.Hasher, cp Checkpoint) *ChainVerifier {
	return &ChainVerifier{hasher: h, prevHash: cp.Hash, verified: cp.Position}
}

// Next verifies the next record: its stored hash must match the recomputed
// one, and its previous hash must equal the prior record's stored hash.
func (v *ChainVerifier) Next(r models.AuditRecord) error {
	expected, err := ComputeHash(v.hasher, r)
	if err != nil {
		return err
	}
	if expected != r.RecordHash {
		return tamper(r, v.verified, ReasonHashMismatch)
	}
	if r.PreviousHash != v.prevHash {
		return tamper(r, v.verified, ReasonBrokenLink)
	}
	v.prevHash = r.RecordHash
	v.verified++
	return nil
}

// Verified returns how many records passed.
func (v *ChainVerifier) Verified() int { return v.verified }

// LastHash returns the stored hash of the last verified record.
func (v *ChainVerifier) LastHash() string { return v.prevHash }

// Checkpoint returns the position to resume from.
func (v *ChainVerifier) Checkpoint() Checkpoint {
	return Checkpoint{Position: v.verified, Hash: v.prevHash}
}

// Checkpoint marks a verified prefix of the ledger: Position records, the
// last of which has stored hash Hash.
type Checkpoint struct {
	Position int    `json:"position"`
	Hash     string `json:"hash"`
}

// VerifyIntegrity checks the whole ledger. It returns nil when every record's
// hash recomputes and every link matches, and a TamperDetected error naming
// the first offending record otherwise.
func (l *Ledger) VerifyIntegrity(ctx context.Context) error {
	_, err := l.VerifyFrom(ctx, Checkpoint{})
	return err
}

// VerifyFrom verifies only the records after cp and returns the new
// checkpoint. cp must describe a prefix of this ledger.
func (l *Ledger) VerifyFrom(ctx context.Context, cp Checkpoint) (Checkpoint, error) {
	records, tail := l.snapshot()

	ctx, span := tracer.Start(ctx, "ledger.VerifyIntegrity")
	defer span.End()
	span.SetAttributes(
		attribute.Int("ledger.records", len(records)),
		attribute.Int("ledger.checkpoint", cp.Position),
	)

	start := time.Now()
	next, err := l.verify(ctx, records, tail, cp)
	l.metrics.ObserveVerify(time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification failed")
		l.reportTamper(ctx, err)
		return cp, err
	}
	return next, nil
}

func (l *Ledger) verify(ctx context.Context, records []models.AuditRecord, tail string, cp Checkpoint) (Checkpoint, error) {
	if cp.Position < 0 || cp.Position > len(records) {
		return cp, dErrors.Newf(dErrors.CodeInvalidRecord, "checkpoint position %d outside ledger of %d", cp.Position, len(records))
	}
	if cp.Position > 0 && records[cp.Position-1].RecordHash != cp.Hash {
		return cp, tamper(records[cp.Position-1], cp.Position-1, ReasonCheckpoint)
	}

	pending := records[cp.Position:]
	firstBad, err := l.firstHashMismatch(ctx, pending)
	if err != nil {
		return cp, err
	}

	prev := cp.Hash
	for i, r := range pending {
		pos := cp.Position + i
		if i == firstBad {
			return cp, tamper(r, pos, ReasonHashMismatch)
		}
		if r.PreviousHash != prev {
			return cp, tamper(r, pos, ReasonBrokenLink)
		}
		prev = r.RecordHash
	}
	if len(records) > 0 && prev != tail {
		last := records[len(records)-1]
		return cp, tamper(last, len(records)-1, ReasonTailMismatch)
	}
	return Checkpoint{Position: len(records), Hash: prev}, nil
}

// firstHashMismatch recomputes hashes in parallel chunks and returns the
// lowest index whose stored hash is wrong, or -1.
func (l *Ledger) firstHashMismatch(ctx context.Context, records []models.AuditRecord) (int, error) {
	workers := l.verifyWorkers
	if limit := (len(records) + minChunk - 1) / minChunk; workers > limit {
		workers = limit
	}
	if workers < 1 {
		return -1, nil
	}
	chunk := (len(records) + workers - 1) / workers

	firsts := make([]int, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		lo := w * chunk
		hi := min(lo+chunk, len(records))
		firsts[w] = -1
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%minChunk == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				expected, err := ComputeHash(l.hasher, records[i])
				if err != nil {
					return err
				}
				if expected != records[i].RecordHash {
					firsts[w] = i
					return nil
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return -1, err
	}
	for _, f := range firsts {
		if f >= 0 {
			return f, nil
		}
	}
	return -1, nil
}

func (l *Ledger) reportTamper(ctx context.Context, err error) {
	if !dErrors.HasCode(err, dErrors.CodeTamperDetected) {
		return
	}
	l.metrics.IncTamperDetected()
	l.logger.ErrorContext(ctx, "ledger tamper detected", "error", err)
	if l.auditor == nil {
		return
	}
	event := audit.Event{
		Action: audit.EventTamperDetected,
		Reason: err.Error(),
	}
	var te *TamperError
	if errors.As(err, &te) {
		event.Subject = te.RecordID.String()
	}
	if emitErr := l.auditor.Emit(ctx, event); emitErr != nil {
		l.logger.ErrorContext(ctx, "tamper audit failed", "error", emitErr)
	}
}
