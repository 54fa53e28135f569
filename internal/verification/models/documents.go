package models

import (
	dErrors "mobirides/pkg/domain-errors"
	pstrings "mobirides/pkg/platform/strings"
)

// DocumentKind names an uploaded identity document. The image itself lives in
// object storage; the record only tracks which kinds were provided.
type DocumentKind string

const (
	DocumentNationalIDFront DocumentKind = "national_id_front"
	DocumentNationalIDBack  DocumentKind = "national_id_back"
	DocumentDriversLicense  DocumentKind = "drivers_license"
	DocumentProofOfAddress  DocumentKind = "proof_of_address"
)

var validDocumentKinds = map[DocumentKind]bool{
	DocumentNationalIDFront: true,
	DocumentNationalIDBack:  true,
	DocumentDriversLicense:  true,
	DocumentProofOfAddress:  true,
}

func (k DocumentKind) IsValid() bool {
	return validDocumentKinds[k]
}

// ParseDocumentKinds trims, lowercases and dedupes kinds, rejecting unknown values.
func ParseDocumentKinds(raw []string) ([]DocumentKind, error) {
	kinds := pstrings.DedupeAndTrimLower(toKinds(raw))
	for _, k := range kinds {
		if !k.IsValid() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown document kind: "+string(k))
		}
	}
	return kinds, nil
}

func toKinds(raw []string) []DocumentKind {
	if raw == nil {
		return nil
	}
	out := make([]DocumentKind, len(raw))
	for i, r := range raw {
		out[i] = DocumentKind(r)
	}
	return out
}

// DocumentUpload tracks the document step.
type DocumentUpload struct {
	Status SubStatus      `json:"status"`
	Kinds  []DocumentKind `json:"kinds"`
}

// MergeKinds adds kinds not already present, preserving order.
func (d *DocumentUpload) MergeKinds(kinds []DocumentKind) {
	d.Kinds = pstrings.DedupeAndTrim(append(append([]DocumentKind(nil), d.Kinds...), kinds...))
}
