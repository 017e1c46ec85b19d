// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package permit verifies signed transfer permits. A permit binds an
// owner, a spender, a token, an amount, a nonce and a deadline; the
// owner signs the digest of those fields with a secp256k1 key and the
// verifier checks the signature against the owner's registered key.
// Each (owner, nonce) pair authorizes exactly one pull.
package permit

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/Genius-Foundation/genius-contracts-sub002/vault"
)

var (
	ErrUnknownSigner    = errors.New("no key registered for owner")
	ErrBadSignature     = errors.New("signature verification failed")
	ErrMalformedSig     = errors.New("signature must be 64 bytes r||s")
	ErrPermitSpent      = errors.New("permit nonce already spent")
	ErrInvalidPublicKey = errors.New("invalid compressed public key")
)

// Verifier checks permit signatures against registered owner keys and
// tracks spent nonces.
type Verifier struct {
	mu   sync.Mutex
	keys map[common.Address]*ecdsa.PublicKey
	used map[common.Address]map[uint64]bool
}

func NewVerifier() *Verifier {
	return &Verifier{
		keys: make(map[common.Address]*ecdsa.PublicKey),
		used: make(map[common.Address]map[uint64]bool),
	}
}

// PubkeyAddress derives the 20-byte address of a secp256k1 public key.
func PubkeyAddress(pub *ecdsa.PublicKey) common.Address {
	h := blake3.New()
	h.Write(pub.X.FillBytes(make([]byte, 32)))
	h.Write(pub.Y.FillBytes(make([]byte, 32)))
	var digest common.Hash
	h.Digest().Read(digest[:])
	return common.BytesToAddress(digest[12:])
}

// RegisterKey stores a compressed public key and returns the owner
// address derived from it.
func (v *Verifier) RegisterKey(compressed []byte) (common.Address, error) {
	x, y := secp256k1.DecompressPubkey(compressed)
	if x == nil {
		return common.Address{}, ErrInvalidPublicKey
	}
	pub := &ecdsa.PublicKey{Curve: secp256k1.S256(), X: x, Y: y}
	owner := PubkeyAddress(pub)

	v.mu.Lock()
	v.keys[owner] = pub
	v.mu.Unlock()
	return owner, nil
}

// Digest computes the signing digest of a permit.
func Digest(p vault.TransferPermit) common.Hash {
	h := blake3.New()
	h.Write([]byte("genius.permit.v1"))
	h.Write(p.Owner[:])
	h.Write(p.Spender[:])
	h.Write(p.Token[:])
	if p.Amount != nil {
		h.Write(p.Amount.FillBytes(make([]byte, 32)))
	} else {
		h.Write(make([]byte, 32))
	}
	var tail [16]byte
	binary.BigEndian.PutUint64(tail[:8], p.Nonce)
	binary.BigEndian.PutUint64(tail[8:], p.Deadline)
	h.Write(tail[:])

	var digest common.Hash
	h.Digest().Read(digest[:])
	return digest
}

// Authorize verifies the signature over the permit digest with the
// owner's registered key and spends the permit's nonce. A permit whose
// nonce was already spent is rejected even with a valid signature.
func (v *Verifier) Authorize(p vault.TransferPermit, sig []byte) error {
	if len(sig) != 64 {
		return fmt.Errorf("%w: got %d bytes", ErrMalformedSig, len(sig))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	pub, ok := v.keys[p.Owner]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSigner, p.Owner)
	}
	if v.used[p.Owner][p.Nonce] {
		return fmt.Errorf("%w: owner %s nonce %d", ErrPermitSpent, p.Owner, p.Nonce)
	}

	digest := Digest(p)
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return ErrBadSignature
	}

	nonces, ok := v.used[p.Owner]
	if !ok {
		nonces = make(map[uint64]bool)
		v.used[p.Owner] = nonces
	}
	nonces[p.Nonce] = true
	return nil
}

// Sign produces a 64-byte r||s signature over the permit digest. Used
// by order submitters and in tests.
func Sign(priv *ecdsa.PrivateKey, p vault.TransferPermit) ([]byte, error) {
	digest := Digest(p)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig, nil
}
