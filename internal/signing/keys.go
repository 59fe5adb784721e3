// Package signing holds key material, Schnorr signing, ECDH and the
// symmetric-crypto bridge used for encrypted content.
package signing

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"nostr-threads/internal/nips"
)

var (
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrInvalidPublicKey  = errors.New("invalid public key")
)

// KeyPair is a secp256k1 key with its x-only public key in lowercase hex.
type KeyPair struct {
	Private   *btcec.PrivateKey
	PublicKey string
}

func newKeyPair(priv *btcec.PrivateKey) *KeyPair {
	return &KeyPair{
		Private:   priv,
		PublicKey: hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey())),
	}
}

// GenerateKeyPair creates a random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return newKeyPair(priv), nil
}

// ParsePrivateKey accepts an nsec1 string or 64 hex characters.
func ParsePrivateKey(s string) (*KeyPair, error) {
	s = strings.TrimSpace(s)

	var raw []byte
	var err error
	if strings.HasPrefix(s, nips.PrefixNSec+"1") {
		raw, err = nips.Decode(nips.PrefixNSec, s)
	} else {
		raw, err = hex.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	if len(raw) != 32 {
		return nil, ErrInvalidPrivateKey
	}

	priv, _ := btcec.PrivKeyFromBytes(raw)
	return newKeyPair(priv), nil
}

// ParsePublicKey accepts an x-only (32 byte) or compressed (33 byte) key
// in hex. X-only keys are lifted to the even-Y point per BIP-340.
func ParsePublicKey(hexKey string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	var pub *btcec.PublicKey
	switch len(raw) {
	case schnorr.PubKeyBytesLen:
		pub, err = schnorr.ParsePubKey(raw)
	case btcec.PubKeyBytesLenCompressed:
		pub, err = btcec.ParsePubKey(raw)
	default:
		return nil, ErrInvalidPublicKey
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}
