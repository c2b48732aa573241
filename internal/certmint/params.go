// Package certmint generates and stores the self-signed certificate a local
// HTTPS server presents. It is the pure cryptographic layer; it has no HTTP
// concerns.
package certmint

import (
	"crypto/x509"
	"time"
)

// SC-081 cutoff dates (CA/Browser Forum ballot): max certificate validity steps down over time.
var (
	sc081Step1 = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC) // until: 398 days
	sc081Step2 = time.Date(2027, 3, 15, 0, 0, 0, 0, time.UTC) // until: 200 days
	sc081Step3 = time.Date(2029, 3, 15, 0, 0, 0, 0, time.UTC) // until: 100 days
	// after step3: 47 days
)

// SC081MaxValidity returns the maximum server certificate validity allowed
// by CA/Browser Forum ballot SC-081 at the given date. Minted certificates
// are capped to it so browsers keep accepting them as the schedule tightens.
func SC081MaxValidity(at time.Time) time.Duration {
	u := at.UTC()
	switch {
	case u.Before(sc081Step1):
		return 398 * 24 * time.Hour
	case u.Before(sc081Step2):
		return 200 * 24 * time.Hour
	case u.Before(sc081Step3):
		return 100 * 24 * time.Hour
	default:
		return 47 * 24 * time.Hour
	}
}

// Organization is the O= field in the subject of minted certificates.
const Organization = "isoserve"

// KeyUsages for minted certificates.
// DigitalSignature: required for ECDSA-based TLS handshakes.
// CertSign: the certificate is self-signed and doubles as its own trust
// anchor when imported into a browser or certificate pool.
// KeyEncipherment is intentionally omitted: it is only valid for RSA keys,
// and including it on an ECDSA cert violates RFC 5480, causing macOS to
// flag the certificate as "not standards compliant".
const KeyUsages = x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign

// ExtKeyUsages for minted certificates. ServerAuth only; this key pair
// identifies a TLS server and nothing else.
var ExtKeyUsages = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
