package signing

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// CipherIV is an encrypted payload with the IV it was produced under,
// both base64.
type CipherIV struct {
	CipherText string `json:"cipherText"`
	IV         string `json:"iv"`
}

// Engine is stateless apart from its bridge; key state lives in Session.
type Engine struct {
	bridge Bridge
	random io.Reader
}

// NewEngine returns an engine that delegates symmetric crypto to bridge.
func NewEngine(bridge Bridge) *Engine {
	return &Engine{bridge: bridge, random: rand.Reader}
}

// CreateEphemeralKeyPair generates a fresh session-scoped key pair.
func (e *Engine) CreateEphemeralKeyPair() (*KeyPair, error) {
	return GenerateKeyPair()
}

// SharedSecret runs ECDH between the chosen local key and theirPubKey and
// returns the shared point's x coordinate (compressed form without its
// parity byte).
func (e *Engine) SharedSecret(session *Session, theirPubKey string, useEphemeral bool) ([]byte, error) {
	local, err := e.localKey(session, useEphemeral)
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKey(theirPubKey)
	if err != nil {
		return nil, err
	}

	var point, result secp256k1.JacobianPoint
	pub.AsJacobian(&point)
	secp256k1.ScalarMultNonConst(&local.Private.Key, &point, &result)
	result.ToAffine()

	shared := secp256k1.NewPublicKey(&result.X, &result.Y)
	return shared.SerializeCompressed()[1:], nil
}

func (e *Engine) localKey(session *Session, useEphemeral bool) (*KeyPair, error) {
	if useEphemeral {
		return session.Ephemeral(e)
	}
	return session.Signer(e)
}

// Encrypt pads plaintext and has the bridge AES-encrypt it with the ECDH
// secret. ivOverride is a base64 IV; empty means a random one.
func (e *Engine) Encrypt(ctx context.Context, session *Session, plaintext, theirPubKey, ivOverride string) (CipherIV, error) {
	shared, err := e.SharedSecret(session, theirPubKey, false)
	if err != nil {
		return CipherIV{}, err
	}

	iv, err := e.iv(ivOverride)
	if err != nil {
		return CipherIV{}, err
	}

	cipherText, err := e.bridge.Encrypt(ctx, FuncAESEncrypt, PKCS7Pad([]byte(plaintext)), shared, iv)
	if err != nil {
		return CipherIV{}, fmt.Errorf("bridge %s: %w", FuncAESEncrypt, err)
	}
	return CipherIV{CipherText: cipherText, IV: base64.StdEncoding.EncodeToString(iv)}, nil
}

// Decrypt reverses Encrypt.
func (e *Engine) Decrypt(ctx context.Context, session *Session, payload CipherIV, theirPubKey string) (string, error) {
	shared, err := e.SharedSecret(session, theirPubKey, false)
	if err != nil {
		return "", err
	}
	iv, err := base64.StdEncoding.DecodeString(payload.IV)
	if err != nil {
		return "", fmt.Errorf("invalid IV: %w", err)
	}

	padded, err := e.bridge.Decrypt(ctx, FuncAESDecrypt, payload.CipherText, shared, iv)
	if err != nil {
		return "", fmt.Errorf("bridge %s: %w", FuncAESDecrypt, err)
	}
	plaintext, err := PKCS7Unpad(padded)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptNIP44 produces a NIP-44 v2 payload through the bridge.
func (e *Engine) EncryptNIP44(ctx context.Context, session *Session, plaintext, theirPubKey string) (string, error) {
	shared, err := e.SharedSecret(session, theirPubKey, false)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, 32)
	if _, err := io.ReadFull(e.random, nonce); err != nil {
		return "", err
	}
	return e.bridge.Encrypt(ctx, FuncNIP44Encrypt, []byte(plaintext), shared, nonce)
}

// DecryptNIP44 opens a NIP-44 v2 payload through the bridge.
func (e *Engine) DecryptNIP44(ctx context.Context, session *Session, payload, theirPubKey string) (string, error) {
	shared, err := e.SharedSecret(session, theirPubKey, false)
	if err != nil {
		return "", err
	}
	plaintext, err := e.bridge.Decrypt(ctx, FuncNIP44Decrypt, payload, shared, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (e *Engine) iv(override string) ([]byte, error) {
	if override != "" {
		iv, err := base64.StdEncoding.DecodeString(override)
		if err != nil {
			return nil, fmt.Errorf("invalid IV override: %w", err)
		}
		return iv, nil
	}
	iv := make([]byte, BlockSize)
	if _, err := io.ReadFull(e.random, iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// Sign returns the hex BIP-340 signature of SHA-256(message).
func (e *Engine) Sign(keys *KeyPair, message string) (string, error) {
	hash := sha256.Sum256([]byte(message))
	sig, err := schnorr.Sign(keys.Private, hash[:])
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// Verify checks a hex BIP-340 signature over SHA-256(message). Any
// malformed input is reported as an invalid signature.
func (e *Engine) Verify(sigHex, message, pubKeyHex string) bool {
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	pubBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(pubBytes) != schnorr.PubKeyBytesLen {
		return false
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}

	hash := sha256.Sum256([]byte(message))
	return sig.Verify(hash[:], pub)
}
