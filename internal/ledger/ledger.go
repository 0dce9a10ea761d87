// Package ledger implements the hash-chained, append-only record of automated
// legal decisions together with its integrity verification.
//
// The record sequence and the tail hash form one logical resource guarded by
// a single RWMutex: appends hold the write lock for the whole
// read-tail/link/hash/store step so two writers can never claim the same
// predecessor, and readers never observe a half-linked tail.
package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"lexaudit/internal/ledger/metrics"
	"lexaudit/internal/ledger/models"
	dErrors "lexaudit/pkg/domain-errors"
	audit "lexaudit/pkg/platform/audit"
	"lexaudit/pkg/platform/hashing"
)

// AppendHook is notified after a record has been committed. Hooks run outside
// the ledger lock, so concurrent appends may reach a hook out of chain order;
// consumers that need order follow previous_hash.
type AppendHook func(ctx context.Context, record models.AuditRecord) error

// Ledger is the in-memory hash chain.
type Ledger struct {
	mu       sync.RWMutex
	records  []models.AuditRecord
	index    map[uuid.UUID]int
	lastHash string

	hasher        hashing.Hasher
	clock         func() time.Time
	logger        *slog.Logger
	metrics       *metrics.Metrics
	auditor       audit.Emitter
	hooks         []AppendHook
	verifyWorkers int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithHasher selects the hash used for chain linking. Defaults to SHA-256.
func WithHasher(h hashing.Hasher) Option {
	return func(l *Ledger) {
		l.hasher = h
	}
}

// WithClock sets the time source used for records appended without a timestamp.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithAuditEmitter reports detected tampering and imports to the platform audit trail.
func WithAuditEmitter(e audit.Emitter) Option {
	return func(l *Ledger) {
		l.auditor = e
	}
}

// WithAppendHook registers a post-commit hook. Hook errors are logged only.
func WithAppendHook(hook AppendHook) Option {
	return func(l *Ledger) {
		l.hooks = append(l.hooks, hook)
	}
}

// WithVerifyWorkers bounds the goroutines used to recompute hashes during
// full verification.
func WithVerifyWorkers(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.verifyWorkers = n
		}
	}
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		index:         make(map[uuid.UUID]int),
		hasher:        hashing.Default(),
		clock:         time.Now,
		logger:        slog.Default(),
		verifyWorkers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Hasher returns the hash used for chain linking, so signature fingerprints
// can be derived with the same function.
func (l *Ledger) Hasher() hashing.Hasher {
	return l.hasher
}

// Append links record to the current tail, seals it and stores it. The
// caller's PreviousHash and RecordHash are ignored. A nil id is replaced with
// a fresh UUID and a zero timestamp with the clock time.
func (l *Ledger) Append(ctx context.Context, record models.AuditRecord) (uuid.UUID, error) {
	if err := validate(record); err != nil {
		return uuid.Nil, err
	}
	record = cloneRecord(record)
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = l.clock()
	}
	record.Timestamp = record.Timestamp.UTC()

	l.mu.Lock()
	if _, dup := l.index[record.ID]; dup {
		l.mu.Unlock()
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidRecord, "duplicate record id %s", record.ID)
	}
	record.PreviousHash = l.lastHash
	hash, err := ComputeHash(l.hasher, record)
	if err != nil {
		l.mu.Unlock()
		return uuid.Nil, err
	}
	record.RecordHash = hash
	l.records = append(l.records, record)
	l.index[record.ID] = len(l.records) - 1
	l.lastHash = hash
	count := len(l.records)
	l.mu.Unlock()

	l.metrics.IncAppends(string(record.EventType))
	l.metrics.SetRecords(count)
	l.notify(ctx, record)
	return record.ID, nil
}

func (l *Ledger) notify(ctx context.Context, record models.AuditRecord) {
	for _, hook := range l.hooks {
		if err := hook(ctx, cloneRecord(record)); err != nil {
			l.logger.WarnContext(ctx, "ledger append hook failed",
				"record_id", record.ID,
				"error", err,
			)
		}
	}
}

func validate(r models.AuditRecord) error {
	if r.StatuteID == "" {
		return dErrors.New(dErrors.CodeInvalidRecord, "statute_id is required")
	}
	if err := r.Actor.Validate(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidRecord, "invalid actor")
	}
	if err := r.Result.Validate(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidRecord, "invalid result")
	}
	return nil
}

// Get returns the record with id.
func (l *Ledger) Get(_ context.Context, id uuid.UUID) (models.AuditRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.index[id]
	if !ok {
		return models.AuditRecord{}, dErrors.Newf(dErrors.CodeNotFound, "record %s not found", id)
	}
	return cloneRecord(l.records[pos]), nil
}

// QueryByStatute returns records for statuteID in chain order.
func (l *Ledger) QueryByStatute(_ context.Context, statuteID string) []models.AuditRecord {
	return l.filter(func(r *models.AuditRecord) bool { return r.StatuteID == statuteID })
}

// QueryBySubject returns records about subjectID in chain order.
func (l *Ledger) QueryBySubject(_ context.Context, subjectID uuid.UUID) []models.AuditRecord {
	return l.filter(func(r *models.AuditRecord) bool { return r.SubjectID == subjectID })
}

// QueryByTimeRange returns records with from <= timestamp <= to in chain order.
func (l *Ledger) QueryByTimeRange(_ context.Context, from, to time.Time) []models.AuditRecord {
	return l.filter(func(r *models.AuditRecord) bool {
		return !r.Timestamp.Before(from) && !r.Timestamp.After(to)
	})
}

func (l *Ledger) filter(match func(*models.AuditRecord) bool) []models.AuditRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.AuditRecord
	for i := range l.records {
		if match(&l.records[i]) {
			out = append(out, cloneRecord(l.records[i]))
		}
	}
	return out
}

// Records returns a copy of the full sequence.
func (l *Ledger) Records() []models.AuditRecord {
	return l.filter(func(*models.AuditRecord) bool { return true })
}

// Count returns the number of stored records.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// LastHash returns the tail hash, or "" for an empty ledger.
func (l *Ledger) LastHash() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastHash
}

// snapshot returns the stored prefix and tail hash at one instant. Stored
// records are never mutated and appends only grow the slice, so the returned
// prefix stays valid after the lock is released.
func (l *Ledger) snapshot() ([]models.AuditRecord, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.records[:len(l.records):len(l.records)], l.lastHash
}

// Export serializes the full record sequence as a JSON array.
func (l *Ledger) Export() ([]byte, error) {
	records, _ := l.snapshot()
	data, err := json.Marshal(records)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSerialization, "export ledger")
	}
	return data, nil
}

// Import loads an exported sequence into an empty ledger. The chain is
// verified before anything is stored; a broken chain is rejected with
// TamperDetected.
func (l *Ledger) Import(ctx context.Context, data []byte) error {
	var records []models.AuditRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return dErrors.Wrap(err, dErrors.CodeSerialization, "import ledger")
	}

	v := NewChainVerifier(l.hasher)
	index := make(map[uuid.UUID]int, len(records))
	for i, r := range records {
		if err := v.Next(r); err != nil {
			l.reportTamper(ctx, err)
			return err
		}
		if _, dup := index[r.ID]; dup {
			return dErrors.Newf(dErrors.CodeInvalidRecord, "duplicate record id %s", r.ID)
		}
		index[r.ID] = i
	}

	l.mu.Lock()
	if len(l.records) > 0 {
		l.mu.Unlock()
		return dErrors.New(dErrors.CodeInvalidRecord, "import requires an empty ledger")
	}
	l.records = records
	l.index = index
	l.lastHash = v.LastHash()
	l.mu.Unlock()

	l.metrics.SetRecords(len(records))
	if l.auditor != nil {
		if err := l.auditor.Emit(ctx, audit.Event{
			Action:  audit.EventLedgerImported,
			Subject: v.LastHash(),
		}); err != nil {
			l.logger.ErrorContext(ctx, "ledger import audit failed", "error", err)
		}
	}
	return nil
}
