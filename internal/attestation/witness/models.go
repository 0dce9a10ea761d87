package witness

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Witness identifies an independent attester and its key material.
type Witness struct {
	ID        string
	Name      string
	PublicKey string // hex
	Algorithm string
}

// WitnessSignature is one witness's attestation on a record. It is immutable
// once registered.
type WitnessSignature struct {
	ID          uuid.UUID         `json:"id"`
	RecordID    uuid.UUID         `json:"record_id"`
	WitnessID   string            `json:"witness_id"`
	WitnessName string            `json:"witness_name"`
	Timestamp   time.Time         `json:"timestamp"`
	Algorithm   string            `json:"algorithm"`
	Signature   string            `json:"signature"`
	PublicKey   string            `json:"public_key"`
	Metadata    map[string]string `json:"metadata"`
}

// baseValid checks that the signature references recordID and carries
// non-empty signature and key material.
func (w WitnessSignature) baseValid(recordID uuid.UUID) bool {
	return w.RecordID == recordID && w.Signature != "" && w.PublicKey != ""
}

func (w WitnessSignature) clone() WitnessSignature {
	w.Metadata = maps.Clone(w.Metadata)
	return w
}

func cloneAll(in []WitnessSignature) []WitnessSignature {
	out := make([]WitnessSignature, len(in))
	for i, w := range in {
		out[i] = w.clone()
	}
	return out
}

// NotarizationPolicy decides whether a set of witness signatures is enough to
// accept a record.
type NotarizationPolicy struct {
	MinSignatures int
	// RequiredWitnesses must all be present; empty means any witness counts.
	RequiredWitnesses []string
	// MaxSignatureAge rejects signatures older than this; zero disables the check.
	MaxSignatureAge time.Duration
}

// IsSatisfied evaluates the policy against the current time.
func (p NotarizationPolicy) IsSatisfied(signatures []WitnessSignature) bool {
	return p.IsSatisfiedAt(signatures, time.Now())
}

// IsSatisfiedAt evaluates the policy with now as the reference time.
func (p NotarizationPolicy) IsSatisfiedAt(signatures []WitnessSignature, now time.Time) bool {
	if len(signatures) < p.MinSignatures {
		return false
	}
	if len(p.RequiredWitnesses) > 0 {
		present := make([]string, 0, len(signatures))
		for _, s := range signatures {
			present = append(present, s.WitnessID)
		}
		for _, required := range p.RequiredWitnesses {
			if !slices.Contains(present, required) {
				return false
			}
		}
	}
	if p.MaxSignatureAge > 0 {
		for _, s := range signatures {
			if now.Sub(s.Timestamp) > p.MaxSignatureAge {
				return false
			}
		}
	}
	return true
}
