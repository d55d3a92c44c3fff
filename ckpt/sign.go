package ckpt

import (
	"crypto/ed25519"
	"encoding/base64"

	"github.com/permaweb/ao-cu/cuerr"
)

// Ed25519Signer signs checkpoint payloads with a static keypair loaded
// once at startup; wallet loading itself is out of scope (spec.md
// §1) so the key material is handed to NewEd25519Signer already parsed.
type Ed25519Signer struct {
	priv    ed25519.PrivateKey
	address string
}

// NewEd25519Signer derives the signer's address from the public half of
// priv, base64url-encoded the way content-addressed owner tags expect.
func NewEd25519Signer(priv ed25519.PrivateKey) *Ed25519Signer {
	pub := priv.Public().(ed25519.PublicKey)
	return &Ed25519Signer{priv: priv, address: base64.RawURLEncoding.EncodeToString(pub)}
}

func (s *Ed25519Signer) Address() string { return s.address }

// Sign builds a DataItem over payload, stamping it with tags plus a
// content-hash tag, and signs the concatenation of id-relevant fields.
func (s *Ed25519Signer) Sign(payload []byte, tags []Tag) (*DataItem, error) {
	if len(s.priv) == 0 {
		return nil, cuerr.New(cuerr.KindFatal, "signer has no private key loaded")
	}
	allTags := append([]Tag{{Name: "SHA-256", Value: hashMemory(payload)}}, tags...)
	signed := ed25519.Sign(s.priv, payload)
	item := &DataItem{
		ID:        base64.RawURLEncoding.EncodeToString(signed[:32]),
		Owner:     s.address,
		Tags:      allTags,
		Data:      payload,
		Signature: signed,
	}
	return item, nil
}

// NoopSigner refuses to sign; used when DISABLE_PROCESS_CHECKPOINT_CREATION
// leaves the remote tier entirely unused so no key material need be
// configured.
type NoopSigner struct{}

func (NoopSigner) Address() string { return "" }
func (NoopSigner) Sign([]byte, []Tag) (*DataItem, error) {
	return nil, cuerr.New(cuerr.KindInvalid, "signing disabled: no checkpoint signer configured")
}
