package outage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DomainPeriod prefixes every period hash. The version suffix allows the
// normalisation rules to change without colliding with older keys.
const DomainPeriod = "outagecal/period/v1"

// Fingerprint is the stable identity key of a semantic outage period.
type Fingerprint string

// Short returns an abbreviated form for logs.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes the identity key of p.
func (p Period) Fingerprint() (Fingerprint, error) {
	obj := map[string]any{
		"group": string(p.Group),
		"kind":  string(p.Kind),
		"start": p.Start.UTC().Format(time.RFC3339),
		"end":   p.End.UTC().Format(time.RFC3339),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return Fingerprint(hashWithDomain(DomainPeriod, canonical)), nil
}

// FingerprintOf normalises o and returns its Fingerprint and Period.
func FingerprintOf(o Observation) (Fingerprint, Period, error) {
	p, err := Normalize(o)
	if err != nil {
		return "", Period{}, err
	}
	fp, err := p.Fingerprint()
	if err != nil {
		return "", Period{}, err
	}
	return fp, p, nil
}

// MustFingerprint is like FingerprintOf but panics on error.
// Use only in tests or when the observation is known to be well formed.
func MustFingerprint(o Observation) Fingerprint {
	fp, _, err := FingerprintOf(o)
	if err != nil {
		panic(err)
	}
	return fp
}
