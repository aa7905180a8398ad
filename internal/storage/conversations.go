// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/jeranaias/turochat/internal/credential"
	"github.com/jeranaias/turochat/internal/kv"
	"github.com/jeranaias/turochat/internal/logging"
	"github.com/jeranaias/turochat/internal/model"
	"github.com/jeranaias/turochat/internal/util"
)

// =============================================================================
// CONVERSATION TYPES
// =============================================================================

// Conversation is one persisted chat record.
type Conversation struct {
	ID                    string          `json:"id"`
	Title                 string          `json:"title"`
	Messages              []model.Message `json:"messages"`
	LastUpdatedAt         int64           `json:"lastUpdatedAt"` // epoch millis
	CredentialFingerprint string          `json:"credentialFingerprint"`
}

// Summary is the listing view of a conversation.
type Summary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	LastUpdatedAt int64  `json:"lastUpdatedAt"`
}

// UpdatedTime returns LastUpdatedAt as a time.Time.
func (c *Conversation) UpdatedTime() time.Time {
	return time.UnixMilli(c.LastUpdatedAt)
}

// Summary returns the listing view of c.
func (c *Conversation) Summary() Summary {
	return Summary{ID: c.ID, Title: c.Title, LastUpdatedAt: c.LastUpdatedAt}
}

// UpdatedTime returns LastUpdatedAt as a time.Time.
func (s Summary) UpdatedTime() time.Time {
	return time.UnixMilli(s.LastUpdatedAt)
}

// =============================================================================
// STORE
// =============================================================================

// StorageName is the unnamespaced key holding the conversation collection.
const StorageName = "chats"

// DefaultTitle is used when the first message has no text.
const DefaultTitle = "New Chat"

// DefaultTitleRunes is the length of the derived title prefix.
const DefaultTitleRunes = 30

// Store persists conversations as a single JSON array in a kv.Backend.
// Records are partitioned by credential fingerprint on read.
//
// Every mutation reads the whole collection, changes it and writes it back.
// The mutex serializes that cycle within one process only.
type Store struct {
	backend    kv.Backend
	key        string
	titleRunes int
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithTitleRunes sets the derived title prefix length.
func WithTitleRunes(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.titleRunes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the conversation id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore creates a conversation store over backend. The collection lives
// under "<namespace>_chats".
func NewStore(backend kv.Backend, namespace string, opts ...Option) *Store {
	s := &Store{
		backend:    backend,
		key:        kv.Key(namespace, StorageName),
		titleRunes: DefaultTitleRunes,
		logger:     logging.Discard(),
		now:        time.Now,
		newID:      generateConversationID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// Create appends a new conversation holding messages and returns its id.
func (s *Store) Create(ctx context.Context, messages []model.Message, cred string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll(ctx)
	if err != nil {
		return "", err
	}

	conv := s.newConversation(messages, cred)
	all = append(all, conv)
	if err := s.writeAll(ctx, all); err != nil {
		return "", err
	}

	s.logger.Debug("conversation created", "id", conv.ID, "messages", len(messages))
	return conv.ID, nil
}

// Update replaces the messages of conversation id. The id is looked up
// across every partition. When it is absent a new conversation is created
// instead and its id returned; otherwise id itself is returned.
func (s *Store) Update(ctx context.Context, id string, messages []model.Message, cred string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll(ctx)
	if err != nil {
		return "", err
	}

	idx := indexOf(all, id)
	if idx < 0 {
		conv := s.newConversation(messages, cred)
		all = append(all, conv)
		if err := s.writeAll(ctx, all); err != nil {
			return "", err
		}
		s.logger.Debug("conversation missing on update, created", "requested", id, "id", conv.ID)
		return conv.ID, nil
	}

	all[idx].Messages = model.CloneMessages(messages)
	all[idx].LastUpdatedAt = s.now().UnixMilli()
	if err := s.writeAll(ctx, all); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateTitle replaces only the title of conversation id. A missing id is
// a no-op.
func (s *Store) UpdateTitle(ctx context.Context, id, title, cred string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll(ctx)
	if err != nil {
		return err
	}

	idx := indexOf(all, id)
	if idx < 0 {
		return nil
	}
	all[idx].Title = title
	return s.writeAll(ctx, all)
}

// Remove deletes conversation id from the collection regardless of which
// credential owns it.
func (s *Store) Remove(ctx context.Context, id, cred string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll(ctx)
	if err != nil {
		return err
	}

	idx := indexOf(all, id)
	if idx < 0 {
		return nil
	}
	return s.writeAll(ctx, append(all[:idx], all[idx+1:]...))
}

// ClearAll removes every conversation owned by cred. When nothing remains
// the storage key itself is deleted.
func (s *Store) ClearAll(ctx context.Context, cred string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll(ctx)
	if err != nil {
		return err
	}

	fp := credential.Fingerprint(cred)
	kept := all[:0]
	for _, c := range all {
		if c.CredentialFingerprint != fp {
			kept = append(kept, c)
		}
	}

	if len(kept) == 0 {
		if err := s.backend.Delete(ctx, s.key); err != nil {
			return fmt.Errorf("failed to delete conversations: %w", err)
		}
		return nil
	}
	return s.writeAll(ctx, kept)
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// List returns summaries of the conversations owned by cred, in storage
// order.
func (s *Store) List(ctx context.Context, cred string) ([]Summary, error) {
	owned, err := s.owned(ctx, cred)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(owned))
	for i := range owned {
		out = append(out, owned[i].Summary())
	}
	return out, nil
}

// Get returns conversation id when cred owns it, otherwise
// ErrConversationNotFound.
func (s *Store) Get(ctx context.Context, id, cred string) (*Conversation, error) {
	owned, err := s.owned(ctx, cred)
	if err != nil {
		return nil, err
	}

	for i := range owned {
		if owned[i].ID == id {
			return &owned[i], nil
		}
	}
	return nil, ErrConversationNotFound
}

// Search returns summaries of owned conversations whose title or any
// message content contains query, case-insensitively. An empty query
// matches everything.
func (s *Store) Search(ctx context.Context, query, cred string) ([]Summary, error) {
	owned, err := s.owned(ctx, cred)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	var results []Summary
	for i := range owned {
		if query == "" || owned[i].matches(query) {
			results = append(results, owned[i].Summary())
		}
	}
	return results, nil
}

func (c *Conversation) matches(lowerQuery string) bool {
	if strings.Contains(strings.ToLower(c.Title), lowerQuery) {
		return true
	}
	for _, msg := range c.Messages {
		if strings.Contains(strings.ToLower(msg.Content), lowerQuery) {
			return true
		}
	}
	return false
}

// owned returns the records whose fingerprint matches cred.
func (s *Store) owned(ctx context.Context, cred string) ([]Conversation, error) {
	s.mu.Lock()
	all, err := s.readAll(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	fp := credential.Fingerprint(cred)
	var out []Conversation
	for _, c := range all {
		if c.CredentialFingerprint == fp {
			out = append(out, c)
		}
	}
	return out, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// readAll loads the whole collection. A missing key reads as empty.
func (s *Store) readAll(ctx context.Context) ([]Conversation, error) {
	data, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversations: %w", err)
	}

	var all []Conversation
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, &ParseError{Key: s.key, Err: err}
	}
	return all, nil
}

// writeAll replaces the whole collection.
func (s *Store) writeAll(ctx context.Context, all []Conversation) error {
	if all == nil {
		all = []Conversation{}
	}
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to encode conversations: %w", err)
	}
	if err := s.backend.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to write conversations: %w", err)
	}
	return nil
}

func (s *Store) newConversation(messages []model.Message, cred string) Conversation {
	return Conversation{
		ID:                    s.newID(),
		Title:                 DeriveTitle(messages, s.titleRunes),
		Messages:              model.CloneMessages(messages),
		LastUpdatedAt:         s.now().UnixMilli(),
		CredentialFingerprint: credential.Fingerprint(cred),
	}
}

func indexOf(all []Conversation, id string) int {
	for i := range all {
		if all[i].ID == id {
			return i
		}
	}
	return -1
}

// DeriveTitle builds a title from the first message: its first n runes,
// with an ellipsis when longer. Empty content yields DefaultTitle.
func DeriveTitle(messages []model.Message, n int) string {
	if len(messages) == 0 || messages[0].Content == "" {
		return DefaultTitle
	}
	return util.PrefixWithEllipsis(messages[0].Content, n)
}

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	return "conv_" + shortuuid.New()
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist or
// belongs to another credential.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

// ConversationError represents a conversation-related error.
// It implements the error interface and can be compared using errors.Is.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// ParseError reports a stored collection that could not be decoded.
type ParseError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("corrupt conversation data in %q: %v", e.Key, e.Err)
}

// Unwrap returns the underlying decode error.
func (e *ParseError) Unwrap() error {
	return e.Err
}
