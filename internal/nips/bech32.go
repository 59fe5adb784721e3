package nips

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Bech32 human-readable prefixes (NIP-19)
const (
	PrefixNPub     = "npub"
	PrefixNSec     = "nsec"
	PrefixNote     = "note"
	PrefixNProfile = "nprofile"
	PrefixNEvent   = "nevent"
	PrefixNAddr    = "naddr"
)

var (
	// ErrInvalidPrefix is returned when a bech32 string decodes under a
	// different human-readable part than the caller expected.
	ErrInvalidPrefix = errors.New("bech32 prefix mismatch")
	ErrInvalidHex    = errors.New("invalid hex string")
)

// Encode converts 8-bit data to 5-bit groups and encodes it under hrp.
func Encode(hrp string, data []byte) (string, error) {
	converted, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, converted)
}

// Decode decodes s, checks that its prefix is expectedHRP and returns the
// 8-bit payload. TLV identifiers exceed the 90 character BIP-173 limit,
// so the length check is skipped.
func Decode(expectedHRP, s string) ([]byte, error) {
	hrp, data, err := bech32.DecodeNoLimit(strings.ToLower(s))
	if err != nil {
		return nil, err
	}
	if hrp != expectedHRP {
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrInvalidPrefix, expectedHRP, hrp)
	}
	return bech32.ConvertBits(data, 5, 8, false)
}

// HexToBech32 encodes a hex key or id, e.g. a pubkey to npub.
func HexToBech32(prefix, hexStr string) (string, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return Encode(prefix, raw)
}

// Bech32ToHex decodes s to hex. Input that does not carry prefix at all
// is assumed to already be hex and is returned unchanged.
func Bech32ToHex(prefix, s string) (string, error) {
	if !strings.Contains(s, prefix) {
		return s, nil
	}
	raw, err := Decode(prefix, s)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// EncodePubkey encodes a hex pubkey to npub format
func EncodePubkey(hexPubkey string) (string, error) {
	return HexToBech32(PrefixNPub, hexPubkey)
}

// EncodeEventID encodes a hex event ID to note format
func EncodeEventID(hexEventID string) (string, error) {
	return HexToBech32(PrefixNote, hexEventID)
}
