package signing

import "sync"

// Session is the key context threaded into signing and ECDH calls. It
// carries an optional configured identity and a lazily created ephemeral
// key that lives as long as the session.
type Session struct {
	mu        sync.Mutex
	identity  *KeyPair
	ephemeral *KeyPair
}

// NewSession returns a session. identity may be nil.
func NewSession(identity *KeyPair) *Session {
	return &Session{identity: identity}
}

// Identity returns the configured identity key, or nil.
func (s *Session) Identity() *KeyPair {
	return s.identity
}

// Ephemeral returns the session's ephemeral key, creating it on first use.
func (s *Session) Ephemeral(e *Engine) (*KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ephemeral == nil {
		kp, err := e.CreateEphemeralKeyPair()
		if err != nil {
			return nil, err
		}
		s.ephemeral = kp
	}
	return s.ephemeral, nil
}

// Signer returns the key events are signed with: the identity when one is
// configured, otherwise the ephemeral key.
func (s *Session) Signer(e *Engine) (*KeyPair, error) {
	if s.identity != nil {
		return s.identity, nil
	}
	return s.Ephemeral(e)
}

// PublicKey returns the signer's public key without creating one. It is
// empty until a key exists.
func (s *Session) PublicKey() string {
	if s.identity != nil {
		return s.identity.PublicKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ephemeral == nil {
		return ""
	}
	return s.ephemeral.PublicKey
}
