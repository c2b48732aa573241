package certmint

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

const (
	keyFilePerms  = 0600
	certFilePerms = 0644
)

// Save writes the minted pair to certPath and keyPath. The key file is
// written 0600, the certificate 0644, both atomically.
func Save(sc *ServerCert, certPath, keyPath string) error {
	if err := writeKey(keyPath, sc.Key); err != nil {
		return fmt.Errorf("save key: %w", err)
	}
	if err := writeCert(certPath, sc.Raw); err != nil {
		return fmt.Errorf("save cert: %w", err)
	}
	return nil
}

// Load reads a previously minted pair and validates that the key matches
// the certificate. It only understands the material Save produces (EC keys);
// the serving path for operator-provided files is LoadServing.
func Load(certPath, keyPath string) (*ServerCert, error) {
	key, err := readKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("load key: %w", err)
	}
	raw, cert, err := readCert(certPath)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}

	if err := validateKeyMatchesCert(key, cert); err != nil {
		return nil, fmt.Errorf("key/cert mismatch: %w", err)
	}

	return &ServerCert{Key: key, Cert: cert, Raw: raw}, nil
}

// HasPair reports whether both files of the key pair exist on disk.
func HasPair(certPath, keyPath string) bool {
	return fileExists(certPath) && fileExists(keyPath)
}

// EnsureSelfSigned returns the pair at the given paths, minting and storing
// a new one for hosts when neither file exists. Existing files are never
// overwritten; half a pair is refused rather than completed, since silently
// replacing the surviving half would invalidate whatever still uses it.
// The returned bool reports whether a new pair was minted.
func EnsureSelfSigned(certPath, keyPath string, hosts []string) (*ServerCert, bool, error) {
	certExists := fileExists(certPath)
	keyExists := fileExists(keyPath)

	switch {
	case certExists && keyExists:
		sc, err := Load(certPath, keyPath)
		return sc, false, err
	case certExists:
		return nil, false, fmt.Errorf("%s exists but %s does not; refusing to overwrite", certPath, keyPath)
	case keyExists:
		return nil, false, fmt.Errorf("%s exists but %s does not; refusing to overwrite", keyPath, certPath)
	}

	sc, err := SelfSigned(hosts)
	if err != nil {
		return nil, false, err
	}
	if err := Save(sc, certPath, keyPath); err != nil {
		return nil, false, err
	}
	return sc, true, nil
}

// LoadServing loads the key pair the TLS listener presents. Unlike Load it
// accepts any PEM material crypto/tls understands (RSA, PKCS#8, chains), so
// operator-provided pairs work too, and a missing file is reported by name
// before anything is parsed.
func LoadServing(certPath, keyPath string) (tls.Certificate, error) {
	for _, path := range []string{certPath, keyPath} {
		if _, err := os.Stat(path); err != nil {
			return tls.Certificate{}, fmt.Errorf("TLS key pair: %w", err)
		}
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load TLS key pair: %w", err)
	}
	return cert, nil
}

// --- PEM helpers ---

func writeKey(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	return writeFileAtomic(path, pem.EncodeToMemory(block), keyFilePerms)
}

func writeCert(path string, der []byte) error {
	block := &pem.Block{Type: "CERTIFICATE", Bytes: der}
	return writeFileAtomic(path, pem.EncodeToMemory(block), certFilePerms)
}

func readKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse key from %s: %w", path, err)
	}
	return key, nil
}

func readCert(path string) ([]byte, *x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, nil, fmt.Errorf("no PEM block found in %s", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse cert from %s: %w", path, err)
	}
	return block.Bytes, cert, nil
}

func validateKeyMatchesCert(key *ecdsa.PrivateKey, cert *x509.Certificate) error {
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is not ECDSA")
	}
	if !key.PublicKey.Equal(pub) {
		return fmt.Errorf("private key does not match certificate public key")
	}
	return nil
}

// writeFileAtomic writes data to a temporary file then renames it into place.
// This prevents partial writes from corrupting existing files.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
