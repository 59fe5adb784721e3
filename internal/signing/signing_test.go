package signing

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-threads/internal/nips"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	engine := NewEngine(LocalBridge{})
	keys, err := engine.CreateEphemeralKeyPair()
	require.NoError(t, err)

	msg := `[0,"pk",1,1,[],"hello"]`
	sig, err := engine.Sign(keys, msg)
	require.NoError(t, err)
	assert.Len(t, sig, 128)

	assert.True(t, engine.Verify(sig, msg, keys.PublicKey))
	assert.False(t, engine.Verify(sig, msg+" ", keys.PublicKey))

	other, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.False(t, engine.Verify(sig, msg, other.PublicKey))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	engine := NewEngine(LocalBridge{})
	assert.False(t, engine.Verify("zz", "m", "zz"))
	assert.False(t, engine.Verify("", "m", ""))
	assert.False(t, engine.Verify(hex.EncodeToString(make([]byte, 64)), "m", hex.EncodeToString(make([]byte, 31))))
}

func TestParsePrivateKeyHexAndNsec(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	privHex := hex.EncodeToString(kp.Private.Serialize())

	fromHex, err := ParsePrivateKey(privHex)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey, fromHex.PublicKey)

	nsec, err := nips.HexToBech32(nips.PrefixNSec, privHex)
	require.NoError(t, err)
	fromNsec, err := ParsePrivateKey(nsec)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey, fromNsec.PublicKey)

	_, err = ParsePrivateKey("abcd")
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
}

func TestSharedSecretIsSymmetric(t *testing.T) {
	engine := NewEngine(LocalBridge{})
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	ab, err := engine.SharedSecret(NewSession(alice), bob.PublicKey, false)
	require.NoError(t, err)
	ba, err := engine.SharedSecret(NewSession(bob), alice.PublicKey, false)
	require.NoError(t, err)

	assert.Len(t, ab, 32)
	assert.Equal(t, ab, ba)
}

func TestSharedSecretMatchesBtcec(t *testing.T) {
	engine := NewEngine(LocalBridge{})
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	// compressed form of bob's key, so parity is carried explicitly
	compressed := hex.EncodeToString(bob.Private.PubKey().SerializeCompressed())
	got, err := engine.SharedSecret(NewSession(alice), compressed, false)
	require.NoError(t, err)

	want := btcec.GenerateSharedSecret(alice.Private, bob.Private.PubKey())
	assert.Equal(t, want, got)
}

func TestSharedSecretRejectsBadKey(t *testing.T) {
	engine := NewEngine(LocalBridge{})
	_, err := engine.SharedSecret(NewSession(nil), "1234", true)
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	engine := NewEngine(LocalBridge{})
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)
	ctx := context.Background()

	sealed, err := engine.Encrypt(ctx, NewSession(alice), "meet at noon", bob.PublicKey, "")
	require.NoError(t, err)
	iv, err := base64.StdEncoding.DecodeString(sealed.IV)
	require.NoError(t, err)
	assert.Len(t, iv, BlockSize)

	opened, err := engine.Decrypt(ctx, NewSession(bob), sealed, alice.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, "meet at noon", opened)
}

func TestEncryptWithIVOverrideIsDeterministic(t *testing.T) {
	engine := NewEngine(LocalBridge{})
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)
	session := NewSession(alice)
	iv := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))

	a, err := engine.Encrypt(context.Background(), session, "same", bob.PublicKey, iv)
	require.NoError(t, err)
	b, err := engine.Encrypt(context.Background(), session, "same", bob.PublicKey, iv)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, iv, a.IV)
}

type failingBridge struct{}

func (failingBridge) Encrypt(context.Context, string, []byte, []byte, []byte) (string, error) {
	return "", errors.New("bridge down")
}

func (failingBridge) Decrypt(context.Context, string, string, []byte, []byte) ([]byte, error) {
	return nil, errors.New("bridge down")
}

func TestEncryptPropagatesBridgeFailure(t *testing.T) {
	engine := NewEngine(failingBridge{})
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	_, err = engine.Encrypt(context.Background(), NewSession(nil), "x", bob.PublicKey, "")
	assert.ErrorContains(t, err, "bridge down")
}

func TestNIP44RoundTrip(t *testing.T) {
	engine := NewEngine(LocalBridge{})
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)
	ctx := context.Background()

	payload, err := engine.EncryptNIP44(ctx, NewSession(alice), "hello nip44", bob.PublicKey)
	require.NoError(t, err)

	plaintext, err := engine.DecryptNIP44(ctx, NewSession(bob), payload, alice.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, "hello nip44", plaintext)
}

func TestLocalBridgeUnknownFunction(t *testing.T) {
	_, err := LocalBridge{}.Encrypt(context.Background(), "rot13", nil, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownBridgeFunction)
}

func TestPKCS7(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 17, 31} {
		data := make([]byte, n)
		padded := PKCS7Pad(data)
		assert.Zero(t, len(padded)%BlockSize, "len %d", n)
		assert.Greater(t, len(padded), n)

		unpadded, err := PKCS7Unpad(padded)
		require.NoError(t, err)
		assert.Len(t, unpadded, n)
	}

	_, err := PKCS7Unpad([]byte("not a block"))
	assert.ErrorIs(t, err, ErrInvalidPadding)
}

func TestCalcPaddedLen(t *testing.T) {
	cases := map[int]int{1: 32, 32: 32, 33: 64, 257: 320, 1025: 1280}
	for in, want := range cases {
		assert.Equal(t, want, calcPaddedLen(in), "len %d", in)
	}
}

func TestSessionEphemeralIsStable(t *testing.T) {
	engine := NewEngine(LocalBridge{})
	session := NewSession(nil)
	assert.Empty(t, session.PublicKey())

	var wg sync.WaitGroup
	keys := make([]*KeyPair, 8)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kp, err := session.Signer(engine)
			assert.NoError(t, err)
			keys[i] = kp
		}(i)
	}
	wg.Wait()

	for _, kp := range keys {
		assert.Same(t, keys[0], kp)
	}
	assert.Equal(t, keys[0].PublicKey, session.PublicKey())
}

func TestSessionPrefersIdentity(t *testing.T) {
	engine := NewEngine(LocalBridge{})
	id, err := GenerateKeyPair()
	require.NoError(t, err)
	session := NewSession(id)

	signer, err := session.Signer(engine)
	require.NoError(t, err)
	assert.Same(t, id, signer)

	eph, err := session.Ephemeral(engine)
	require.NoError(t, err)
	assert.NotEqual(t, id.PublicKey, eph.PublicKey)
}
