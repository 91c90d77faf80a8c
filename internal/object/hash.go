package object

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// DomainSnapshot is the domain prefix for snapshot digests.
// The version suffix enables future algorithm migration.
const DomainSnapshot = "listsync/snapshot/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest computes a stable content hash of an ordered object list.
//
// Two lists with the same objects in the same order (payload included)
// always produce the same digest. encoding/json sorts map keys, and
// identity strings are NFC normalised so visually identical names hash alike.
func Digest(objs []Tracked) (string, error) {
	normalized := make([]Tracked, len(objs))
	for i, o := range objs {
		o.UID = norm.NFC.String(o.UID)
		o.Namespace = norm.NFC.String(o.Namespace)
		o.Name = norm.NFC.String(o.Name)
		normalized[i] = o
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("digest: marshal objects: %w", err)
	}
	return hashWithDomain(DomainSnapshot, data), nil
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when payloads are known to be JSON-safe.
func MustDigest(objs []Tracked) string {
	d, err := Digest(objs)
	if err != nil {
		panic(err)
	}
	return d
}
