// Package threshold coordinates multi-party signatures over batches of ledger
// records. A batch is attested once a configured number of distinct parties
// have signed its fingerprint.
//
// Signatures are partitioned by fingerprint: the top-level map lock is held
// only to find or create an entry, and each entry has its own mutex, so
// signers working on unrelated batches do not contend.
package threshold

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lexaudit/internal/attestation/metrics"
	"lexaudit/internal/ledger/models"
	dErrors "lexaudit/pkg/domain-errors"
	audit "lexaudit/pkg/platform/audit"
	"lexaudit/pkg/platform/hashing"
	"lexaudit/pkg/platform/signing"
)

var tracer = otel.Tracer("lexaudit/internal/attestation/threshold")

type entry struct {
	mu  sync.Mutex
	sig MultiPartySignature
}

// Coordinator collects party signatures per fingerprint.
type Coordinator struct {
	config   Config
	parties  map[string]Party
	verifier signing.Verifier

	hasher  hashing.Hasher
	clock   func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor audit.Emitter

	mu      sync.RWMutex
	entries map[string]*entry
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithHasher must match the ledger's hasher so fingerprints are stable.
func WithHasher(h hashing.Hasher) Option {
	return func(c *Coordinator) {
		c.hasher = h
	}
}

func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithAuditEmitter(e audit.Emitter) Option {
	return func(c *Coordinator) {
		c.auditor = e
	}
}

// New validates cfg and returns an empty coordinator.
func New(cfg Config, verifier signing.Verifier, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if verifier == nil {
		return nil, dErrors.New(dErrors.CodeInvalidRecord, "signature verifier is required")
	}
	c := &Coordinator{
		config:   cfg,
		parties:  make(map[string]Party, len(cfg.Parties)),
		verifier: verifier,
		hasher:   hashing.Default(),
		clock:    time.Now,
		logger:   slog.Default(),
		entries:  make(map[string]*entry),
	}
	for _, p := range cfg.Parties {
		c.parties[p.ID] = p
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Parties returns the configured parties.
func (c *Coordinator) Parties() []Party {
	return append([]Party(nil), c.config.Parties...)
}

// Threshold returns the number of distinct signers required.
func (c *Coordinator) Threshold() int {
	return c.config.Threshold
}

// Fingerprint derives the batch fingerprint from the records' stored hashes,
// in the order given.
func (c *Coordinator) Fingerprint(records []models.AuditRecord) (string, error) {
	if len(records) == 0 {
		return "", dErrors.New(dErrors.CodeInvalidRecord, "batch is empty")
	}
	hashes := make([]string, len(records))
	for i, r := range records {
		if r.RecordHash == "" {
			return "", dErrors.Newf(dErrors.CodeInvalidRecord, "record %s is not sealed", r.ID)
		}
		hashes[i] = r.RecordHash
	}
	return c.hasher.Digest(hashes...), nil
}

// Sign records partyID's signature over the batch fingerprint. Unknown
// parties are rejected before anything is stored.
func (c *Coordinator) Sign(ctx context.Context, records []models.AuditRecord, partyID string, signer signing.Signer) (MultiPartySignature, error) {
	if signer == nil {
		return MultiPartySignature{}, dErrors.New(dErrors.CodeInvalidRecord, "signer is required")
	}
	if _, ok := c.parties[partyID]; !ok {
		return MultiPartySignature{}, dErrors.Newf(dErrors.CodeInvalidRecord, "unknown party %q", partyID)
	}
	fp, err := c.Fingerprint(records)
	if err != nil {
		return MultiPartySignature{}, err
	}
	raw, err := signer.Sign([]byte(fp))
	if err != nil {
		return MultiPartySignature{}, dErrors.Wrap(err, dErrors.CodeInvalidRecord, "party signer failed")
	}
	return c.store(ctx, fp, partyID, hex.EncodeToString(raw)), nil
}

// Submit records a signature produced outside the process. Unlike Sign, the
// signature must verify against the party's public key before it is stored.
func (c *Coordinator) Submit(ctx context.Context, records []models.AuditRecord, partyID, signatureHex string) (MultiPartySignature, error) {
	party, ok := c.parties[partyID]
	if !ok {
		return MultiPartySignature{}, dErrors.Newf(dErrors.CodeInvalidRecord, "unknown party %q", partyID)
	}
	fp, err := c.Fingerprint(records)
	if err != nil {
		return MultiPartySignature{}, err
	}
	if !signing.VerifyHex(c.verifier, signatureHex, []byte(fp), party.PublicKey) {
		c.metrics.IncVerification("threshold_submit", false)
		return MultiPartySignature{}, dErrors.Newf(dErrors.CodeInvalidRecord, "signature from %q does not verify", partyID)
	}
	return c.store(ctx, fp, partyID, signatureHex), nil
}

func (c *Coordinator) store(ctx context.Context, fp, partyID, signatureHex string) MultiPartySignature {
	e := c.entryFor(fp)
	now := c.clock().UTC()

	e.mu.Lock()
	e.sig.Signatures = append(e.sig.Signatures, PartySignature{
		PartyID:   partyID,
		Signature: signatureHex,
		SignedAt:  now,
	})
	justCompleted := false
	if e.sig.CompletedAt == nil && e.sig.UniqueSigners() >= c.config.Threshold {
		e.sig.CompletedAt = &now
		justCompleted = true
	}
	out := e.sig.clone()
	e.mu.Unlock()

	c.metrics.IncPartySignature(partyID)
	if justCompleted {
		c.metrics.IncThresholdCompleted()
		c.logger.InfoContext(ctx, "signature threshold reached",
			"fingerprint", fp,
			"threshold", c.config.Threshold,
		)
		c.emit(ctx, audit.Event{Action: audit.EventThresholdCompleted, Subject: fp, ActorID: partyID})
	}
	return out
}

func (c *Coordinator) entryFor(fp string) *entry {
	c.mu.RLock()
	e, ok := c.entries[fp]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.entries[fp]; !ok {
		e = &entry{sig: MultiPartySignature{DataHash: fp}}
		c.entries[fp] = e
	}
	return e
}

func (c *Coordinator) lookup(fp string) (MultiPartySignature, bool) {
	c.mu.RLock()
	e, ok := c.entries[fp]
	c.mu.RUnlock()
	if !ok {
		return MultiPartySignature{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sig.clone(), true
}

// Status returns the collected signatures for the batch.
func (c *Coordinator) Status(records []models.AuditRecord) (MultiPartySignature, error) {
	fp, err := c.Fingerprint(records)
	if err != nil {
		return MultiPartySignature{}, err
	}
	sig, ok := c.lookup(fp)
	if !ok {
		return MultiPartySignature{}, dErrors.Newf(dErrors.CodeNotFound, "no signatures for fingerprint %s", fp)
	}
	return sig, nil
}

// IsComplete reports whether the batch has reached its threshold.
func (c *Coordinator) IsComplete(records []models.AuditRecord) (bool, error) {
	fp, err := c.Fingerprint(records)
	if err != nil {
		return false, err
	}
	sig, ok := c.lookup(fp)
	return ok && sig.IsComplete(), nil
}

// Verify checks every collected signature for the batch. It returns false if
// fewer than threshold signatures exist, if any signature names an unknown
// party or fails verification, or if the verified signatures come from fewer
// than threshold distinct parties.
func (c *Coordinator) Verify(ctx context.Context, records []models.AuditRecord) (bool, error) {
	fp, err := c.Fingerprint(records)
	if err != nil {
		return false, err
	}

	_, span := tracer.Start(ctx, "threshold.Verify",
		trace.WithAttributes(attribute.String("threshold.fingerprint", fp)))
	defer span.End()

	ok := c.verify(fp)
	span.SetAttributes(attribute.Bool("threshold.valid", ok))
	c.metrics.IncVerification("threshold", ok)
	return ok, nil
}

func (c *Coordinator) verify(fp string) bool {
	sig, found := c.lookup(fp)
	if !found || len(sig.Signatures) < c.config.Threshold {
		return false
	}

	verified := make(map[string]struct{}, len(sig.Signatures))
	for _, s := range sig.Signatures {
		party, ok := c.parties[s.PartyID]
		if !ok {
			return false
		}
		if !signing.VerifyHex(c.verifier, s.Signature, []byte(fp), party.PublicKey) {
			return false
		}
		verified[s.PartyID] = struct{}{}
	}
	return len(verified) >= c.config.Threshold
}

// Export serializes the signature store as fingerprint -> MultiPartySignature.
func (c *Coordinator) Export() ([]byte, error) {
	c.mu.RLock()
	out := make(map[string]MultiPartySignature, len(c.entries))
	for fp, e := range c.entries {
		e.mu.Lock()
		out[fp] = e.sig.clone()
		e.mu.Unlock()
	}
	c.mu.RUnlock()

	data, err := json.Marshal(out)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSerialization, "export threshold signatures")
	}
	return data, nil
}

// Import replaces the signature store with an exported one.
func (c *Coordinator) Import(ctx context.Context, data []byte) error {
	var in map[string]MultiPartySignature
	if err := json.Unmarshal(data, &in); err != nil {
		return dErrors.Wrap(err, dErrors.CodeSerialization, "import threshold signatures")
	}

	entries := make(map[string]*entry, len(in))
	for fp, sig := range in {
		if sig.DataHash == "" {
			sig.DataHash = fp
		}
		if sig.DataHash != fp {
			return dErrors.Newf(dErrors.CodeInvalidRecord, "entry %s carries data hash %s", fp, sig.DataHash)
		}
		entries[fp] = &entry{sig: sig}
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	c.emit(ctx, audit.Event{
		Action: audit.EventSignaturesImported,
		Reason: "threshold signature store replaced",
	})
	return nil
}

func (c *Coordinator) emit(ctx context.Context, event audit.Event) {
	if c.auditor == nil {
		return
	}
	if err := c.auditor.Emit(ctx, event); err != nil {
		c.logger.ErrorContext(ctx, "attestation audit failed",
			"action", event.Action,
			"error", err,
		)
	}
}
