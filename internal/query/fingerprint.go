package query

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// FingerprintLength is the number of characters of the base64-encoded SHA-256
// digest kept as a query's public identity.
const FingerprintLength = 30

// InvalidFingerprint is the sentinel fingerprint for queries the compiler
// failed to resolve. Executing it is always refused at the trusted boundary.
const InvalidFingerprint = "invalid"

// Fingerprint computes a query's 30-character identity from its normalized
// text and the ordered type tags of its parameter schema. Parameter names are
// not hashed, so two call sites whose text and slot types match produce
// identical fingerprints even when their synthesized slot names differ.
func Fingerprint(text string, schema *ParamSchema) string {
	var b strings.Builder
	b.WriteString(text)
	b.WriteByte('\n')
	if schema != nil {
		for _, name := range schema.Names() {
			typ, _ := schema.Get(name)
			b.WriteString(string(typ))
			b.WriteByte(';')
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	encoded := base64.StdEncoding.EncodeToString(sum[:])
	if len(encoded) < FingerprintLength {
		return encoded
	}
	return encoded[:FingerprintLength]
}
