package signing

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

// Bridge function names.
const (
	FuncAESEncrypt   = "aesEncrypt"
	FuncAESDecrypt   = "aesDecrypt"
	FuncNIP44Encrypt = "nip44Encrypt"
	FuncNIP44Decrypt = "nip44Decrypt"
)

var ErrUnknownBridgeFunction = errors.New("unknown bridge function")

// Bridge performs symmetric crypto on behalf of the Engine. Encrypt
// returns base64 ciphertext; Decrypt takes base64 ciphertext.
type Bridge interface {
	Encrypt(ctx context.Context, name string, data, key, iv []byte) (string, error)
	Decrypt(ctx context.Context, name string, data string, key, iv []byte) ([]byte, error)
}

// LocalBridge runs the bridge functions in-process. The AES functions
// expect data that is already padded to the block size and return
// decrypted data with the padding still on.
type LocalBridge struct{}

func (LocalBridge) Encrypt(ctx context.Context, name string, data, key, iv []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch name {
	case FuncAESEncrypt:
		block, err := aes.NewCipher(key)
		if err != nil {
			return "", err
		}
		if len(data)%aes.BlockSize != 0 {
			return "", ErrInvalidPadding
		}
		if len(iv) != aes.BlockSize {
			return "", errors.New("invalid IV length")
		}
		ciphertext := make([]byte, len(data))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, data)
		return base64.StdEncoding.EncodeToString(ciphertext), nil

	case FuncNIP44Encrypt:
		return nip44EncryptWithNonce(string(data), conversationKey(key), iv)
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownBridgeFunction, name)
}

func (LocalBridge) Decrypt(ctx context.Context, name string, data string, key, iv []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch name {
	case FuncAESDecrypt:
		ciphertext, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, errors.New("invalid ciphertext base64")
		}
		if len(iv) != aes.BlockSize {
			return nil, errors.New("invalid IV length")
		}
		if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
			return nil, errors.New("ciphertext is not a multiple of block size")
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		plaintext := make([]byte, len(ciphertext))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
		return plaintext, nil

	case FuncNIP44Decrypt:
		plaintext, err := nip44Decrypt(data, conversationKey(key))
		if err != nil {
			return nil, err
		}
		return []byte(plaintext), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBridgeFunction, name)
}
