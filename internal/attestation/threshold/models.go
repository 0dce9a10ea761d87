package threshold

import (
	"time"

	dErrors "lexaudit/pkg/domain-errors"
)

// Party is an authorized signer. PublicKey is hex-encoded.
type Party struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
}

// Config names the parties and how many distinct ones must sign.
type Config struct {
	Parties   []Party
	Threshold int
}

// NewConfig validates that party ids are unique and non-empty and that
// 1 <= threshold <= len(parties).
func NewConfig(parties []Party, threshold int) (Config, error) {
	cfg := Config{Parties: append([]Party(nil), parties...), Threshold: threshold}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Threshold < 1 || c.Threshold > len(c.Parties) {
		return dErrors.Newf(dErrors.CodeInvalidRecord,
			"threshold %d must be between 1 and %d parties", c.Threshold, len(c.Parties))
	}
	seen := make(map[string]struct{}, len(c.Parties))
	for _, p := range c.Parties {
		if p.ID == "" {
			return dErrors.New(dErrors.CodeInvalidRecord, "party id is required")
		}
		if _, dup := seen[p.ID]; dup {
			return dErrors.Newf(dErrors.CodeInvalidRecord, "duplicate party id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// PartySignature is one party's signature over a fingerprint. Signature is hex.
type PartySignature struct {
	PartyID   string    `json:"party_id"`
	Signature string    `json:"signature"`
	SignedAt  time.Time `json:"signed_at"`
}

// MultiPartySignature collects signatures for one fingerprint. CompletedAt is
// set the first time the number of distinct signers reaches the threshold
// and is never cleared.
type MultiPartySignature struct {
	DataHash    string           `json:"data_hash"`
	Signatures  []PartySignature `json:"signatures"`
	CompletedAt *time.Time       `json:"completed_at"`
}

// IsComplete reports whether the threshold has been reached.
func (m MultiPartySignature) IsComplete() bool {
	return m.CompletedAt != nil
}

// UniqueSigners counts distinct party ids.
func (m MultiPartySignature) UniqueSigners() int {
	seen := make(map[string]struct{}, len(m.Signatures))
	for _, s := range m.Signatures {
		seen[s.PartyID] = struct{}{}
	}
	return len(seen)
}

func (m MultiPartySignature) clone() MultiPartySignature {
	m.Signatures = append([]PartySignature(nil), m.Signatures...)
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		m.CompletedAt = &t
	}
	return m
}
