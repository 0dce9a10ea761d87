package handler

import (
	"github.com/google/uuid"

	"lexaudit/internal/attestation/witness"
	dErrors "lexaudit/pkg/domain-errors"
)

// ThresholdSignRequest is the body of POST /attestations/threshold/sign.
// RecordIDs is the batch in signing order; Signature is hex over the batch
// fingerprint.
type ThresholdSignRequest struct {
	RecordIDs []uuid.UUID `json:"record_ids"`
	PartyID   string      `json:"party_id"`
	Signature string      `json:"signature"`
}

func (r ThresholdSignRequest) Validate() error {
	if len(r.RecordIDs) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "record_ids is required")
	}
	if r.PartyID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "party_id is required")
	}
	if r.Signature == "" {
		return dErrors.New(dErrors.CodeBadRequest, "signature is required")
	}
	return nil
}

// WitnessSignRequest is the body of POST /attestations/witness. Signature is
// hex over the record hash.
type WitnessSignRequest struct {
	RecordID    uuid.UUID         `json:"record_id"`
	WitnessID   string            `json:"witness_id"`
	WitnessName string            `json:"witness_name"`
	Algorithm   string            `json:"algorithm"`
	Signature   string            `json:"signature"`
	PublicKey   string            `json:"public_key"`
	Metadata    map[string]string `json:"metadata"`
}

func (r WitnessSignRequest) Validate() error {
	if r.RecordID == uuid.Nil {
		return dErrors.New(dErrors.CodeBadRequest, "record_id is required")
	}
	if r.WitnessID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "witness_id is required")
	}
	if r.Signature == "" || r.PublicKey == "" {
		return dErrors.New(dErrors.CodeBadRequest, "signature and public_key are required")
	}
	return nil
}

func (r WitnessSignRequest) ToSignature() witness.WitnessSignature {
	return witness.WitnessSignature{
		RecordID:    r.RecordID,
		WitnessID:   r.WitnessID,
		WitnessName: r.WitnessName,
		Algorithm:   r.Algorithm,
		Signature:   r.Signature,
		PublicKey:   r.PublicKey,
		Metadata:    r.Metadata,
	}
}
