package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FingerprintLen is the number of hex characters kept from the digest.
// 64 bits is plenty for thousands of postings per tenant.
const FingerprintLen = 16

// Fingerprint returns the stable identity of a posting. Both fields are
// trimmed and Unicode lower-cased before hashing, so case and surrounding
// whitespace variants collapse to one fingerprint regardless of source.
func Fingerprint(title, company string) string {
	sum := sha256.Sum256([]byte(normalize(title) + "|" + normalize(company)))
	return hex.EncodeToString(sum[:])[:FingerprintLen]
}

func normalize(s string) string {
	// Casers carry state and must not be shared.
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}
