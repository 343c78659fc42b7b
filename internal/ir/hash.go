package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainFormula = "frontbase/formula/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write([]byte{0x00})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FormulaID computes the stable id of the formula that writes modelKey.fieldKey.
// A field holds at most one formula, so the (model, field) pair identifies it
// across restarts.
func FormulaID(modelKey, fieldKey string) string {
	return hashWithDomain(DomainFormula, modelKey, fieldKey)[:16]
}
