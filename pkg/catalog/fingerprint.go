package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Fingerprint returns the hex SHA-256 of the RFC 8785 canonical JSON of d.
// Two descriptors with the same content always share a fingerprint.
func Fingerprint(d ActionDescriptor) (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("catalog: fingerprint marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("catalog: fingerprint canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// CatalogFingerprint hashes every descriptor of c in registration order.
func CatalogFingerprint(c ActionCatalog) (string, error) {
	raw, err := json.Marshal(c.ListDescriptors())
	if err != nil {
		return "", fmt.Errorf("catalog: fingerprint marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("catalog: fingerprint canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
