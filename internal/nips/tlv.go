package nips

import (
	"encoding/hex"
	"errors"
	"strings"
)

// TLVType is the type byte of a NIP-19 TLV entry.
type TLVType byte

// TLV type constants for NIP-19
const (
	TLVSpecial TLVType = 0 // event_id for nevent, pubkey for nprofile, d-tag for naddr
	TLVRelay   TLVType = 1
	TLVAuthor  TLVType = 2
	TLVKind    TLVType = 3
)

// TLVEntry is one (type, value) pair for EncodeTLV.
type TLVEntry struct {
	Type  TLVType
	Value []byte
}

var errTLVValueTooLong = errors.New("tlv value longer than 255 bytes")

// DecodeTLV walks (type, length, value) triples. A triple that runs past
// the end of data stops decoding; everything parsed before it is kept.
// The first occurrence of each type wins.
func DecodeTLV(data []byte) map[TLVType][]byte {
	out := make(map[TLVType][]byte)

	for i := 0; i < len(data); {
		if i+2 > len(data) {
			break
		}

		tlvType := TLVType(data[i])
		tlvLen := int(data[i+1])
		i += 2

		if i+tlvLen > len(data) {
			break
		}

		value := data[i : i+tlvLen]
		i += tlvLen

		if _, seen := out[tlvType]; !seen {
			out[tlvType] = value
		}
	}

	return out
}

// EncodeTLV serialises entries in order.
func EncodeTLV(entries ...TLVEntry) ([]byte, error) {
	var buf []byte
	for _, e := range entries {
		if len(e.Value) > 255 {
			return nil, errTLVValueTooLong
		}
		buf = append(buf, byte(e.Type), byte(len(e.Value)))
		buf = append(buf, e.Value...)
	}
	return buf, nil
}

// Bech32ToTLV decodes a composite identifier into hex-encoded TLV values.
// A string that does not contain prefix yields an empty map; a string
// that decodes under another prefix is ErrInvalidPrefix.
func Bech32ToTLV(prefix, s string) (map[TLVType]string, error) {
	out := make(map[TLVType]string)
	if !strings.Contains(s, prefix) {
		return out, nil
	}

	raw, err := Decode(prefix, s)
	if err != nil {
		return nil, err
	}

	for t, v := range DecodeTLV(raw) {
		out[t] = hex.EncodeToString(v)
	}
	return out, nil
}

// EncodeNEvent builds a nevent1 identifier. author and relays are optional.
func EncodeNEvent(eventIDHex, authorHex string, relays ...string) (string, error) {
	id, err := hex.DecodeString(eventIDHex)
	if err != nil {
		return "", ErrInvalidHex
	}
	entries := []TLVEntry{{Type: TLVSpecial, Value: id}}
	for _, r := range relays {
		entries = append(entries, TLVEntry{Type: TLVRelay, Value: []byte(r)})
	}
	if authorHex != "" {
		author, err := hex.DecodeString(authorHex)
		if err != nil {
			return "", ErrInvalidHex
		}
		entries = append(entries, TLVEntry{Type: TLVAuthor, Value: author})
	}

	data, err := EncodeTLV(entries...)
	if err != nil {
		return "", err
	}
	return Encode(PrefixNEvent, data)
}

// EncodeNProfile builds a nprofile1 identifier.
func EncodeNProfile(pubkeyHex string, relays ...string) (string, error) {
	pk, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return "", ErrInvalidHex
	}
	entries := []TLVEntry{{Type: TLVSpecial, Value: pk}}
	for _, r := range relays {
		entries = append(entries, TLVEntry{Type: TLVRelay, Value: []byte(r)})
	}

	data, err := EncodeTLV(entries...)
	if err != nil {
		return "", err
	}
	return Encode(PrefixNProfile, data)
}
