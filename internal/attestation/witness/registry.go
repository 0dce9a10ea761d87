// Package witness collects independent witness attestations on ledger
// records and evaluates notarization policies over them.
//
// Signatures are stored per record id; each record's list has its own lock so
// witnesses attesting different records proceed in parallel.
package witness

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"lexaudit/internal/attestation/metrics"
	"lexaudit/internal/ledger/models"
	dErrors "lexaudit/pkg/domain-errors"
	audit "lexaudit/pkg/platform/audit"
	"lexaudit/pkg/platform/signing"
)

type recordEntry struct {
	mu   sync.RWMutex
	sigs []WitnessSignature
}

// Registry maps record ids to their witness signatures.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*recordEntry

	verifier signing.Verifier
	clock    func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  audit.Emitter
}

// Option configures a Registry.
type Option func(*Registry)

// WithVerifier additionally checks each signature cryptographically against
// the record hash in VerifyRecord.
func WithVerifier(v signing.Verifier) Option {
	return func(r *Registry) {
		r.verifier = v
	}
}

func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithAuditEmitter(e audit.Emitter) Option {
	return func(r *Registry) {
		r.auditor = e
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[uuid.UUID]*recordEntry),
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddSignature registers sig under its record id. A nil signature id is
// replaced with a fresh one.
func (r *Registry) AddSignature(_ context.Context, sig WitnessSignature) (WitnessSignature, error) {
	if sig.RecordID == uuid.Nil {
		return WitnessSignature{}, dErrors.New(dErrors.CodeInvalidRecord, "witness signature requires record_id")
	}
	if sig.WitnessID == "" {
		return WitnessSignature{}, dErrors.New(dErrors.CodeInvalidRecord, "witness signature requires witness_id")
	}
	sig = sig.clone()
	if sig.ID == uuid.Nil {
		sig.ID = uuid.New()
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = r.clock().UTC()
	}

	e := r.entryFor(sig.RecordID)
	e.mu.Lock()
	e.sigs = append(e.sigs, sig)
	e.mu.Unlock()

	r.metrics.IncWitnessSignature()
	return sig.clone(), nil
}

// Sign signs the record hash as w and registers the signature.
func (r *Registry) Sign(ctx context.Context, record models.AuditRecord, w Witness, signer signing.Signer, metadata map[string]string) (WitnessSignature, error) {
	if signer == nil {
		return WitnessSignature{}, dErrors.New(dErrors.CodeInvalidRecord, "signer is required")
	}
	if record.RecordHash == "" {
		return WitnessSignature{}, dErrors.Newf(dErrors.CodeInvalidRecord, "record %s is not sealed", record.ID)
	}
	raw, err := signer.Sign([]byte(record.RecordHash))
	if err != nil {
		return WitnessSignature{}, dErrors.Wrap(err, dErrors.CodeInvalidRecord, "witness signer failed")
	}
	algorithm := w.Algorithm
	if algorithm == "" {
		algorithm = signing.AlgorithmEd25519
	}
	return r.AddSignature(ctx, WitnessSignature{
		RecordID:    record.ID,
		WitnessID:   w.ID,
		WitnessName: w.Name,
		Algorithm:   algorithm,
		Signature:   hex.EncodeToString(raw),
		PublicKey:   w.PublicKey,
		Metadata:    maps.Clone(metadata),
	})
}

// Submit registers a signature produced outside the process for record. The
// signature must name record, carry key material and, when a verifier is
// configured, verify over the record hash; otherwise nothing is stored.
func (r *Registry) Submit(ctx context.Context, record models.AuditRecord, sig WitnessSignature) (WitnessSignature, error) {
	if record.RecordHash == "" {
		return WitnessSignature{}, dErrors.Newf(dErrors.CodeInvalidRecord, "record %s is not sealed", record.ID)
	}
	if sig.RecordID == uuid.Nil {
		sig.RecordID = record.ID
	}
	if !sig.baseValid(record.ID) {
		return WitnessSignature{}, dErrors.New(dErrors.CodeInvalidRecord, "witness signature must name the record and carry signature and public_key")
	}
	if r.verifier != nil && !signing.VerifyHex(r.verifier, sig.Signature, []byte(record.RecordHash), sig.PublicKey) {
		r.metrics.IncVerification("witness_submit", false)
		return WitnessSignature{}, dErrors.Newf(dErrors.CodeInvalidRecord, "signature from %q does not verify", sig.WitnessID)
	}
	if sig.Algorithm == "" {
		sig.Algorithm = signing.AlgorithmEd25519
	}
	return r.AddSignature(ctx, sig)
}

func (r *Registry) entryFor(recordID uuid.UUID) *recordEntry {
	r.mu.RLock()
	e, ok := r.entries[recordID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[recordID]; !ok {
		e = &recordEntry{}
		r.entries[recordID] = e
	}
	return e
}

// GetSignatures returns the signatures registered for recordID.
func (r *Registry) GetSignatures(recordID uuid.UUID) []WitnessSignature {
	r.mu.RLock()
	e, ok := r.entries[recordID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneAll(e.sigs)
}

// GetWitnessSignatures returns every signature made by witnessID.
func (r *Registry) GetWitnessSignatures(witnessID string) []WitnessSignature {
	r.mu.RLock()
	entries := make([]*recordEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var out []WitnessSignature
	for _, e := range entries {
		e.mu.RLock()
		for _, s := range e.sigs {
			if s.WitnessID == witnessID {
				out = append(out, s.clone())
			}
		}
		e.mu.RUnlock()
	}
	return out
}

// HasQuorum reports whether at least n signatures exist for recordID.
func (r *Registry) HasQuorum(recordID uuid.UUID, n int) bool {
	r.mu.RLock()
	e, ok := r.entries[recordID]
	r.mu.RUnlock()
	if !ok {
		return n <= 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sigs) >= n
}

// VerifyRecord checks every registered signature on record. A record with no
// signatures verifies as true; callers that need at least one witness must
// combine this with a NotarizationPolicy.
func (r *Registry) VerifyRecord(_ context.Context, record models.AuditRecord) bool {
	ok := r.verifyRecord(record)
	r.metrics.IncVerification("witness", ok)
	return ok
}

func (r *Registry) verifyRecord(record models.AuditRecord) bool {
	for _, s := range r.GetSignatures(record.ID) {
		if !s.baseValid(record.ID) {
			return false
		}
		if r.verifier != nil && !signing.VerifyHex(r.verifier, s.Signature, []byte(record.RecordHash), s.PublicKey) {
			return false
		}
	}
	return true
}

// Notarize reports whether record's signatures all verify and satisfy policy.
func (r *Registry) Notarize(ctx context.Context, record models.AuditRecord, policy NotarizationPolicy) bool {
	if !r.VerifyRecord(ctx, record) {
		return false
	}
	return policy.IsSatisfiedAt(r.GetSignatures(record.ID), r.clock())
}

// Export serializes the store as record_id -> []WitnessSignature.
func (r *Registry) Export() ([]byte, error) {
	r.mu.RLock()
	out := make(map[uuid.UUID][]WitnessSignature, len(r.entries))
	for id, e := range r.entries {
		e.mu.RLock()
		out[id] = cloneAll(e.sigs)
		e.mu.RUnlock()
	}
	r.mu.RUnlock()

	data, err := json.Marshal(out)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSerialization, "export witness signatures")
	}
	return data, nil
}

// Import replaces the store with an exported one.
func (r *Registry) Import(ctx context.Context, data []byte) error {
	var in map[uuid.UUID][]WitnessSignature
	if err := json.Unmarshal(data, &in); err != nil {
		return dErrors.Wrap(err, dErrors.CodeSerialization, "import witness signatures")
	}

	entries := make(map[uuid.UUID]*recordEntry, len(in))
	for id, sigs := range in {
		entries[id] = &recordEntry{sigs: sigs}
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()

	if r.auditor != nil {
		if err := r.auditor.Emit(ctx, audit.Event{
			Action: audit.EventWitnessesImported,
			Reason: "witness signature store replaced",
		}); err != nil {
			r.logger.ErrorContext(ctx, "attestation audit failed", "error", err)
		}
	}
	return nil
}
