// Package signature wraps the external cryptographic signature service the
// core depends on but does not implement: committee membership and the
// node's own secret key are loaded from files named by configuration
// (`committee_file`, `key_file`), and every committed block is assumed
// already verified by the consensus layer before it reaches AnalyzeBlock.
// This package supplies that collaborator's concrete shape so the rest of
// the tree has something real to construct and pass around, not a stub.
package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// Provider abstracts signing and verification for the node's own key, kept
// algorithm-agnostic in the teacher's style even though this repo only ever
// constructs an Ed25519 provider.
type Provider interface {
	PublicKeyBytes() []byte
	Sign(data []byte) ([]byte, error)
	Verify(publicKey, data, sig []byte) bool
}

// Ed25519Provider implements Provider using Ed25519 (RFC 8032), the default
// and only algorithm this repo wires — the committee's signing scheme is a
// consensus-layer concern, out of scope here.
type Ed25519Provider struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEd25519Provider generates a fresh key pair, used by tests and by
// GenerateKeyFile.
func NewEd25519Provider() (*Ed25519Provider, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signature: generate ed25519 key: %w", err)
	}
	return &Ed25519Provider{priv: priv, pub: pub}, nil
}

// LoadEd25519FromKeyFile reads a PKCS8 PEM-encoded Ed25519 private key from
// path, the file named by the `key_file` configuration key.
func LoadEd25519FromKeyFile(path string) (*Ed25519Provider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signature: read key file %q: %w", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("signature: key file %q contains no PEM block", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("signature: parse key file %q: %w", path, err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signature: key file %q is not an Ed25519 private key", path)
	}
	return &Ed25519Provider{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// GenerateKeyFile creates a fresh Ed25519 key pair and writes the private
// key to path as a PKCS8 PEM block, the format LoadEd25519FromKeyFile
// reads back. It is the generation half of the key_file passthrough
// cmd/flctl exposes to operators.
func GenerateKeyFile(path string) (*Ed25519Provider, error) {
	p, err := NewEd25519Provider()
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(p.priv)
	if err != nil {
		return nil, fmt.Errorf("signature: marshal generated key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("signature: write key file %q: %w", path, err)
	}
	return p, nil
}

func (p *Ed25519Provider) PublicKeyBytes() []byte {
	return []byte(p.pub)
}

func (p *Ed25519Provider) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(p.priv, data), nil
}

func (p *Ed25519Provider) Verify(publicKey, data, sig []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), data, sig)
}

// Committee is the set of member public keys loaded from `committee_file`,
// one base64-free raw-hex key per line. The core never verifies consensus
// messages itself — Committee exists so a node can identify which public
// key corresponds to which committee member when logging or reporting
// status, not to re-validate consensus.
type Committee struct {
	Members map[string][]byte // member name -> raw public key bytes
}

// LoadCommittee reads a committee file in the format `<name> <hex-pubkey>`
// per line.
func LoadCommittee(path string) (*Committee, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signature: read committee file %q: %w", path, err)
	}
	c := &Committee{Members: make(map[string][]byte)}
	if err := parseCommitteeLines(raw, c.Members); err != nil {
		return nil, fmt.Errorf("signature: parse committee file %q: %w", path, err)
	}
	return c, nil
}
