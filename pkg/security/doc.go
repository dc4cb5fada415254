/*
Package security provides the cryptographic primitives cephadmd's bootstrap
and agent code build mutual TLS on: AES-256-GCM secrets encryption, a
per-cluster certificate authority, and certificate file management.

# Cluster encryption key

Every cluster derives one 32-byte AES key from its cluster ID:

	clusterKey = SHA-256(clusterID)

SetClusterEncryptionKey installs it process-wide; Encrypt/Decrypt use it to
protect the CA's root private key at rest. SecretsManager is a separate,
explicitly-keyed encryptor for callers that don't want the process-global.

# Certificate authority

CertAuthority holds one self-signed root (RSA 4096, 10-year validity) and
issues two kinds of leaf certificate from it (RSA 2048, 90-day validity):

  - IssueAgentCertificate, for a host agent's mTLS listener. Carries both
    ClientAuth and ServerAuth so the same cert works dialing out to the
    manager and accepting the manager's pushed config.
  - IssueManagerCertificate, for the manager's side of that connection.
    ClientAuth only, no DNS names or IPs, so it is not usable as a TLS
    server certificate.

SaveToDir/LoadFromDir persist the root under the cluster's data directory,
encrypting the private key with the cluster encryption key first.

# Certificate files

The certs.go helpers save/load a tls.Certificate and its CA to a directory
as node.crt/node.key/ca.crt, and answer the "is this cert due for rotation"
question bootstrap and agent startup both need to ask.
*/
package security
