package plan

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gowebpki/jcs"
)

// maxExactInteger is the largest integer every JSON reader holds exactly.
const maxExactInteger = 1<<53 - 1

// Fingerprint returns the hex SHA-256 of the RFC 8785 canonical JSON of p.
// Resolving the same raw plan against an unchanged context always yields
// the same fingerprint.
//
// RFC 8785 reads numbers as float64. Integers beyond ±(2^53-1), and numbers
// outside the float64 range, are hashed as their decimal strings (the
// RFC 7493 convention) so that distinct values never share a fingerprint.
func Fingerprint(p *ResolvedPlan) (string, error) {
	if p == nil {
		return "", errors.New("plan: fingerprint of nil plan")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("plan: fingerprint marshal: %w", err)
	}
	raw, err = exactNumbers(raw)
	if err != nil {
		return "", fmt.Errorf("plan: fingerprint marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("plan: fingerprint canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func exactNumbers(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return json.Marshal(rewriteNumbers(doc))
}

func rewriteNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = rewriteNumbers(val)
		}
	case []any:
		for i, val := range t {
			t[i] = rewriteNumbers(val)
		}
	case json.Number:
		s := t.String()
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) {
			return s
		}
		if !strings.ContainsAny(s, ".eE") && math.Abs(f) > maxExactInteger {
			return s
		}
	}
	return v
}
