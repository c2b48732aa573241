package certmint

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"net"
	"time"
)

// ServerCert holds a minted certificate's private key and certificate.
type ServerCert struct {
	Key  *ecdsa.PrivateKey
	Cert *x509.Certificate
	Raw  []byte // DER-encoded certificate
}

// SelfSigned mints a self-signed ECDSA P-256 server certificate covering
// hosts. Entries that parse as IP literals become IP SANs; everything else
// becomes a DNS SAN. The first host doubles as the subject CommonName.
// Validity is capped by SC081MaxValidity from now.
func SelfSigned(hosts []string) (*ServerCert, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("at least one host is required")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	ski, err := subjectKeyID(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	var dnsNames []string
	var ipAddresses []net.IP
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			ipAddresses = append(ipAddresses, ip)
		} else {
			dnsNames = append(dnsNames, h)
		}
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{Organization},
			CommonName:   hosts[0],
		},
		DNSNames:              dnsNames,
		IPAddresses:           ipAddresses,
		NotBefore:             now,
		NotAfter:              now.Add(SC081MaxValidity(now)),
		KeyUsage:              KeyUsages,
		ExtKeyUsage:           ExtKeyUsages,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,    // Signs nothing below itself.
		MaxPathLenZero:        true, // Explicitly encode MaxPathLen:0.
		SubjectKeyId:          ski,
	}

	// Self-signed: issuer = subject, signed with its own key.
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	return &ServerCert{
		Key:  key,
		Cert: cert,
		Raw:  der,
	}, nil
}

// subjectKeyID computes the SubjectKeyIdentifier per RFC 5280 §4.2.1.2:
// a SHA-256 hash of the DER-encoded public key bit string.
func subjectKeyID(pub *ecdsa.PublicKey) ([]byte, error) {
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	// The PKIX structure wraps the key in a BIT STRING inside a SEQUENCE.
	// The hash covers the raw BIT STRING value (the actual key bytes).
	var spki struct {
		Algorithm asn1.RawValue
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(pubDER, &spki); err != nil {
		return nil, fmt.Errorf("unmarshal SPKI: %w", err)
	}
	sum := sha256.Sum256(spki.PublicKey.Bytes)
	return sum[:], nil
}

// randomSerial generates a random 128-bit serial number for a certificate.
// X.509 serial numbers must be positive integers unique per issuer. Using
// crypto/rand with 128 bits makes collisions astronomically unlikely
// without needing a counter or database.
func randomSerial() (*big.Int, error) {
	// 128 bits = 16 bytes. Enough entropy to be unique without tracking state.
	max := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, fmt.Errorf("generate random serial: %w", err)
	}
	return serial, nil
}
