package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CertAuthority is the per-cluster root CA cephadmd's bootstrap orchestrator
// generates once, used to sign the agent server certificates and the
// manager client certificate spec.md §4.9's mutual TLS listener verifies
// against. Grounded on the teacher's CertAuthority: same root-then-issue
// shape, repointed from a raft-replicated KV store to the cluster's own
// data directory, since a single bootstrapped cluster has exactly one CA
// and no second manager to replicate it to.
type CertAuthority struct {
	rootCert  *x509.Certificate
	rootKey   *rsa.PrivateKey
	dir       string
	certCache map[string]*CachedCert
	mu        sync.RWMutex
}

// CachedCert is an issued certificate kept in memory for the life of the
// process that issued it.
type CachedCert struct {
	Cert      *x509.Certificate
	Key       *rsa.PrivateKey
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// caData is the serialized CA material written to disk.
type caData struct {
	RootCertDER []byte
	RootKeyDER  []byte
}

const (
	// Root CA validity: 10 years, matching spec.md's "bootstrap happens once"
	// lifecycle assumption.
	rootCAValidity = 10 * 365 * 24 * time.Hour
	// Agent/manager certificate validity: 90 days.
	entityCertValidity = 90 * 24 * time.Hour
	rootKeySize         = 4096
	entityKeySize       = 2048
)

// NewCertAuthority builds a CertAuthority rooted at dir (the cluster's data
// directory; ca.json lives directly under it).
func NewCertAuthority(dir string) *CertAuthority {
	return &CertAuthority{dir: dir, certCache: make(map[string]*CachedCert)}
}

func (ca *CertAuthority) path() string {
	return filepath.Join(ca.dir, "ca.json")
}

// Initialize generates a new root CA certificate and key pair in memory.
// Callers must call SaveToDir to persist it.
func (ca *CertAuthority) Initialize(clusterID string) error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	rootKey, err := rsa.GenerateKey(rand.Reader, rootKeySize)
	if err != nil {
		return fmt.Errorf("failed to generate root key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"cephadmd"},
			CommonName:   fmt.Sprintf("cephadmd cluster %s CA", clusterID),
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(rootCAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            1,
		MaxPathLenZero:        false,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &rootKey.PublicKey, rootKey)
	if err != nil {
		return fmt.Errorf("failed to create root certificate: %w", err)
	}

	rootCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("failed to parse root certificate: %w", err)
	}

	ca.rootCert = rootCert
	ca.rootKey = rootKey
	return nil
}

// LoadFromDir loads a previously initialized CA from disk, decrypting its
// private key with the cluster encryption key (see SetClusterEncryptionKey).
func (ca *CertAuthority) LoadFromDir() error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	raw, err := os.ReadFile(ca.path())
	if err != nil {
		return fmt.Errorf("failed to read CA data: %w", err)
	}

	var cd caData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return fmt.Errorf("failed to unmarshal CA data: %w", err)
	}

	decryptedKey, err := Decrypt(cd.RootKeyDER)
	if err != nil {
		return fmt.Errorf("failed to decrypt root key: %w", err)
	}

	rootCert, err := x509.ParseCertificate(cd.RootCertDER)
	if err != nil {
		return fmt.Errorf("failed to parse root certificate: %w", err)
	}

	rootKey, err := x509.ParsePKCS1PrivateKey(decryptedKey)
	if err != nil {
		return fmt.Errorf("failed to parse root key: %w", err)
	}

	ca.rootCert = rootCert
	ca.rootKey = rootKey
	return nil
}

// SaveToDir encrypts the root key with the cluster encryption key and
// writes both it and the root cert to ca.json under the cluster data dir.
func (ca *CertAuthority) SaveToDir() error {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil || ca.rootKey == nil {
		return fmt.Errorf("CA not initialized")
	}

	rootKeyDER := x509.MarshalPKCS1PrivateKey(ca.rootKey)
	encryptedKey, err := Encrypt(rootKeyDER)
	if err != nil {
		return fmt.Errorf("failed to encrypt root key: %w", err)
	}

	cd := caData{RootCertDER: ca.rootCert.Raw, RootKeyDER: encryptedKey}
	data, err := json.Marshal(cd)
	if err != nil {
		return fmt.Errorf("failed to marshal CA data: %w", err)
	}

	if err := os.MkdirAll(ca.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create CA directory: %w", err)
	}
	if err := os.WriteFile(ca.path(), data, 0o600); err != nil {
		return fmt.Errorf("failed to save CA data: %w", err)
	}
	return nil
}

// IssueAgentCertificate issues a server certificate for one host's agent
// mgr listener (spec.md §4.9), identified by dnsNames/ipAddresses so the
// manager's dial can verify the host it thinks it's talking to.
func (ca *CertAuthority) IssueAgentCertificate(hostID string, dnsNames []string, ipAddresses []net.IP) (*tls.Certificate, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil || ca.rootKey == nil {
		return nil, fmt.Errorf("CA not initialized")
	}

	entityKey, err := rsa.GenerateKey(rand.Reader, entityKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate agent key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"cephadmd"},
			CommonName:   fmt.Sprintf("agent-%s", hostID),
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(entityCertValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		DNSNames:    dnsNames,
		IPAddresses: ipAddresses,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.rootCert, &entityKey.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent certificate: %w", err)
	}

	entityCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse agent certificate: %w", err)
	}

	tlsCert := &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  entityKey,
		Leaf:        entityCert,
	}
	ca.cacheCertificate(hostID, entityCert, entityKey)
	return tlsCert, nil
}

// IssueManagerCertificate issues the client certificate the manager
// presents when pushing config to an agent's mgr listener.
func (ca *CertAuthority) IssueManagerCertificate(managerID string) (*tls.Certificate, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil || ca.rootKey == nil {
		return nil, fmt.Errorf("CA not initialized")
	}

	entityKey, err := rsa.GenerateKey(rand.Reader, entityKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate manager key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"cephadmd"},
			CommonName:   fmt.Sprintf("mgr-%s", managerID),
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(entityCertValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.rootCert, &entityKey.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create manager certificate: %w", err)
	}

	entityCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manager certificate: %w", err)
	}

	tlsCert := &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  entityKey,
		Leaf:        entityCert,
	}
	ca.cacheCertificate(managerID, entityCert, entityKey)
	return tlsCert, nil
}

// VerifyCertificate verifies a certificate against the root CA.
func (ca *CertAuthority) VerifyCertificate(cert *x509.Certificate) error {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil {
		return fmt.Errorf("CA not initialized")
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca.rootCert)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

// GetRootCACert returns the root CA certificate in DER format.
func (ca *CertAuthority) GetRootCACert() []byte {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil {
		return nil
	}
	return ca.rootCert.Raw
}

// IsInitialized returns true if the CA is initialized.
func (ca *CertAuthority) IsInitialized() bool {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return ca.rootCert != nil && ca.rootKey != nil
}

func (ca *CertAuthority) cacheCertificate(id string, cert *x509.Certificate, key *rsa.PrivateKey) {
	ca.certCache[id] = &CachedCert{
		Cert:      cert,
		Key:       key,
		IssuedAt:  cert.NotBefore,
		ExpiresAt: cert.NotAfter,
	}
}

// GetCachedCert retrieves a cached certificate.
func (ca *CertAuthority) GetCachedCert(id string) (*CachedCert, bool) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	cert, exists := ca.certCache[id]
	return cert, exists
}
