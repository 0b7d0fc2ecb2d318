// Package fingerprint derives stable identities for uploaded artifacts.
// The same (name, content) pair always produces the same identity, which
// is how the pipeline tells "same artifact, resume" from "new artifact,
// start over".
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sum returns a deterministic 64-character hex identity for an artifact.
// Name and content are length-prefixed before hashing so that shifting
// bytes between the two fields cannot produce the same identity.
func Sum(name string, content []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s", len(name), name)
	fmt.Fprintf(h, "%d:", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
