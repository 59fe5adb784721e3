package signing

import (
	"bytes"
	"errors"
)

// BlockSize is the PKCS7 boundary used before handing data to the bridge.
const BlockSize = 16

var ErrInvalidPadding = errors.New("invalid PKCS7 padding")

// PKCS7Pad pads data to a multiple of BlockSize. A full block of padding
// is added when data is already aligned.
func PKCS7Pad(data []byte) []byte {
	padding := BlockSize - len(data)%BlockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padding)}, padding)...)
}

// PKCS7Unpad strips and checks PKCS7 padding.
func PKCS7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%BlockSize != 0 {
		return nil, ErrInvalidPadding
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > BlockSize {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-padding], nil
}
