// Package report submits failures to an external issue tracker: stable
// fingerprinting, duplicate search, template rendering, rate-limit-aware
// submission, and screenshot reference comments.
package report

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/agentic-hq/agentic/pkg/models"
)

// Fingerprint identifies a failure across runs and processes. Hash is a pure
// function of scenario ID, error message, and category; identical failures
// always produce identical fingerprints.
type Fingerprint struct {
	ScenarioID     string `json:"scenarioId"`
	ErrorMessage   string `json:"errorMessage"`
	Category       string `json:"category"`
	StackTraceHash string `json:"stackTraceHash,omitempty"`
	Hash           string `json:"hash"`
}

// fingerprintInputs fixes the canonical JSON key order the hash is computed
// over. Changing field order changes every fingerprint.
type fingerprintInputs struct {
	ScenarioID   string `json:"scenarioId"`
	ErrorMessage string `json:"errorMessage"`
	Category     string `json:"category"`
}

// NewFingerprint derives the fingerprint for a failure. A missing category
// hashes as "unknown".
func NewFingerprint(failure models.TestFailure) Fingerprint {
	category := failure.Category
	if category == "" {
		category = "unknown"
	}
	inputs := fingerprintInputs{
		ScenarioID:   failure.ScenarioID,
		ErrorMessage: failure.Message,
		Category:     category,
	}
	raw, _ := json.Marshal(inputs)
	sum := sha256.Sum256(raw)

	fp := Fingerprint{
		ScenarioID:   failure.ScenarioID,
		ErrorMessage: failure.Message,
		Category:     category,
		Hash:         hex.EncodeToString(sum[:])[:16],
	}
	if failure.StackTrace != "" {
		stackSum := md5.Sum([]byte(failure.StackTrace))
		fp.StackTraceHash = hex.EncodeToString(stackSum[:])[:8]
	}
	return fp
}

// Marker is the literal embedded in issue bodies and searched for during
// deduplication.
func (f Fingerprint) Marker() string {
	return "<!-- fingerprint:" + f.Hash + " -->"
}
