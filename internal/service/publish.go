package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"nostr-threads/internal/nostr"
	"nostr-threads/internal/types"
)

// ErrNilEvent is returned by Sign and Send when given no event.
var ErrNilEvent = errors.New("nil event")

// Sign fills PubKey, ID and Sig from the session's signing key.
func (s *Service) Sign(evt *types.Event) error {
	if evt == nil {
		return ErrNilEvent
	}

	keys, err := s.session.Signer(s.engine)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	evt.PubKey = keys.PublicKey

	serialized, err := nostr.SerializeSignable(evt)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}
	evt.ID = nostr.HashHex(serialized)

	sig, err := s.engine.Sign(keys, serialized)
	if err != nil {
		return fmt.Errorf("sign event: %w", err)
	}
	evt.Sig = sig
	return nil
}

// Verify checks Sig against the event's own canonical form and PubKey.
func (s *Service) Verify(evt *types.Event) bool {
	if evt == nil || evt.Sig == "" || evt.PubKey == "" {
		return false
	}
	serialized, err := nostr.SerializeSignable(evt)
	if err != nil {
		return false
	}
	return s.engine.Verify(evt.Sig, serialized, evt.PubKey)
}

// Send sets the kind, optionally encrypts the content for
// encryptPubKey, signs and publishes to every relay.
func (s *Service) Send(ctx context.Context, kind types.Kind, evt *types.Event, encryptPubKey string) error {
	if evt == nil {
		return ErrNilEvent
	}
	evt.Kind = kind

	if encryptPubKey != "" && evt.Content != "" {
		sealed, err := s.engine.Encrypt(ctx, s.session, evt.Content, encryptPubKey, "")
		if err != nil {
			return fmt.Errorf("encrypt content: %w", err)
		}
		content, err := nostr.Marshal(sealed)
		if err != nil {
			return fmt.Errorf("encode ciphertext: %w", err)
		}
		evt.Content = string(content)
	}

	if err := s.Sign(evt); err != nil {
		return err
	}

	s.pool.SendEvent(ctx, evt, uuid.NewString())
	return nil
}

// CreateEvent drafts an unsigned event. parentID and rootID become
// marked e-tags when set, pTags become p-tags.
func (s *Service) CreateEvent(kind types.Kind, message, parentID, rootID string, pTags []string) *types.Event {
	evt := &types.Event{
		PubKey:    s.session.PublicKey(),
		CreatedAt: s.now().Unix(),
		Kind:      kind,
		Tags:      []types.Tag{},
		Content:   message,
	}
	if parentID != "" {
		evt.Tags = append(evt.Tags, types.NewTag(types.TagEvent, parentID, "", types.MarkerReply))
	}
	if rootID != "" {
		evt.Tags = append(evt.Tags, types.NewTag(types.TagEvent, rootID, "", types.MarkerRoot))
	}
	for _, pk := range pTags {
		evt.Tags = append(evt.Tags, types.NewTag(types.TagPubKey, pk))
	}
	return evt
}
