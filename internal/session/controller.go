// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/turochat/internal/cloud"
	"github.com/jeranaias/turochat/internal/credential"
	"github.com/jeranaias/turochat/internal/logging"
	"github.com/jeranaias/turochat/internal/model"
	"github.com/jeranaias/turochat/internal/storage"
)

// DefaultMaxUploadBytes bounds the size of an uploaded attachment.
const DefaultMaxUploadBytes = 20 * 1024 * 1024

// =============================================================================
// COLLABORATORS
// =============================================================================

// Credentials is the credential store as seen by the controller.
type Credentials interface {
	Get(ctx context.Context) (string, bool, error)
	Clear(ctx context.Context) error
}

// ConversationStore is the durable conversation store.
type ConversationStore interface {
	Create(ctx context.Context, messages []model.Message, cred string) (string, error)
	Update(ctx context.Context, id string, messages []model.Message, cred string) (string, error)
	UpdateTitle(ctx context.Context, id, title, cred string) error
	List(ctx context.Context, cred string) ([]storage.Summary, error)
	Get(ctx context.Context, id, cred string) (*storage.Conversation, error)
	Remove(ctx context.Context, id, cred string) error
}

// Gateway sends one completion request.
type Gateway interface {
	Complete(ctx context.Context, messages []cloud.ChatMessage) (string, error)
}

// =============================================================================
// STATE
// =============================================================================

// State is the controller's send state.
type State int

const (
	// StateIdle means no cycle is in flight.
	StateIdle State = iota
	// StateSending means a send or upload cycle is in flight.
	StateSending
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateSending:
		return "sending"
	default:
		return "idle"
	}
}

// Snapshot is a copy of the controller state for rendering.
type Snapshot struct {
	ConversationID string
	Messages       []model.Message
	State          State
	Err            error
}

// Upload is a file offered for attachment.
type Upload struct {
	Name      string
	MediaType string
	Reader    io.Reader
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the active conversation: its id, its message log, the
// send state and the last error.
//
// All methods are safe for concurrent use. The mutex is never held while
// talking to storage or the gateway. Outcome failures are recorded and
// read back through LastError; only immediate rejections are returned.
type Controller struct {
	creds   Credentials
	store   ConversationStore
	gateway Gateway

	logger         *slog.Logger
	strictLoad     bool
	maxUploadBytes int64
	onChatChange   func(id string)

	mu       sync.Mutex
	activeID string
	messages []model.Message
	state    State
	lastErr  error

	// epoch increments whenever the active conversation is replaced, so a
	// cycle can tell that its results no longer belong anywhere.
	epoch  uint64
	cancel context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStrictLoad makes LoadChat record ErrConversationNotFound for a
// missing id instead of ignoring it.
func WithStrictLoad(strict bool) Option {
	return func(c *Controller) { c.strictLoad = strict }
}

// WithOnChatChange registers a callback for active conversation id changes.
// It runs synchronously, outside the controller lock.
func WithOnChatChange(fn func(id string)) Option {
	return func(c *Controller) { c.onChatChange = fn }
}

// WithMaxUploadBytes bounds attachment size.
func WithMaxUploadBytes(n int64) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxUploadBytes = n
		}
	}
}

// NewController creates a controller with an empty, unsaved conversation.
func NewController(creds Credentials, store ConversationStore, gateway Gateway, opts ...Option) *Controller {
	c := &Controller{
		creds:          creds,
		store:          store,
		gateway:        gateway,
		logger:         logging.Discard(),
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ConversationID: c.activeID,
		Messages:       model.CloneMessages(c.messages),
		State:          c.state,
		Err:            c.lastErr,
	}
}

// ConversationID returns the active id, empty for an unsaved conversation.
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// Messages returns a copy of the in-memory log.
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.CloneMessages(c.messages)
}

// State returns the send state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent recorded failure, or nil.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// =============================================================================
// NAVIGATION
// =============================================================================

// StartNewChat discards the in-memory conversation without touching
// storage. An in-flight cycle is cancelled and its result dropped.
func (c *Controller) StartNewChat() {
	c.mu.Lock()
	c.supersedeLocked()
	c.activeID = ""
	c.messages = nil
	c.mu.Unlock()

	c.notify("")
}

// LoadChat replaces the active conversation with the stored one. A missing
// id leaves state as it was, including an in-flight cycle; under strict
// loading the miss is recorded.
func (c *Controller) LoadChat(ctx context.Context, id string) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	cred, _, err := c.creds.Get(ctx)
	if err != nil {
		c.recordIf(epoch, err)
		c.notify(id)
		return
	}

	conv, err := c.store.Get(ctx, id, cred)

	c.mu.Lock()
	switch {
	case c.epoch != epoch:
		// Another navigation won while reading.
	case errors.Is(err, storage.ErrConversationNotFound):
		if c.strictLoad {
			c.lastErr = fmt.Errorf("load %s: %w", id, err)
		}
		c.logger.Debug("load of missing conversation", "id", id, "strict", c.strictLoad)
	case err != nil:
		c.lastErr = err
		c.logger.Error("failed to load conversation", "id", id, "error", err)
	default:
		c.supersedeLocked()
		c.activeID = conv.ID
		c.messages = model.CloneMessages(conv.Messages)
		c.lastErr = nil
	}
	c.mu.Unlock()

	c.notify(id)
}

// DeleteCurrentChat removes the active conversation from storage and starts
// a new one. Without an active id only the reset happens.
func (c *Controller) DeleteCurrentChat(ctx context.Context) {
	c.mu.Lock()
	id := c.activeID
	c.supersedeLocked()
	epoch := c.epoch
	c.mu.Unlock()

	if id != "" {
		cred, _, err := c.creds.Get(ctx)
		if err == nil {
			err = c.store.Remove(ctx, id, cred)
		}
		if err != nil {
			c.logger.Error("failed to delete conversation", "id", id, "error", err)
			c.recordIf(epoch, err)
			return
		}
		c.logger.Debug("conversation deleted", "id", id)
	}

	c.mu.Lock()
	if c.epoch == epoch {
		c.activeID = ""
		c.messages = nil
		c.lastErr = nil
	}
	c.mu.Unlock()

	c.notify("")
}

// RenameChat sets the title of conversation id. The in-memory log is never
// affected, even for the active conversation.
func (c *Controller) RenameChat(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		verr := &ValidationError{Field: "title", Message: "must not be empty"}
		c.record(verr)
		return verr
	}

	cred, _, err := c.creds.Get(ctx)
	if err == nil {
		err = c.store.UpdateTitle(ctx, id, title, cred)
	}
	if err != nil {
		c.logger.Error("failed to rename conversation", "id", id, "error", err)
		c.record(err)
	}
	return nil
}

// GetAllChats lists the conversations of the current credential, most
// recently updated first. Failures are recorded and yield nil.
func (c *Controller) GetAllChats(ctx context.Context) []storage.Summary {
	cred, ok, err := c.creds.Get(ctx)
	if err != nil {
		c.record(err)
		return nil
	}
	if !ok {
		return nil
	}

	summaries, err := c.store.List(ctx, cred)
	if err != nil {
		c.logger.Error("failed to list conversations", "error", err)
		c.record(err)
		return nil
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastUpdatedAt > summaries[j].LastUpdatedAt
	})
	return summaries
}

// Logout clears the credential and discards the in-memory conversation
// without persisting it.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	c.supersedeLocked()
	c.activeID = ""
	c.messages = nil
	c.lastErr = nil
	epoch := c.epoch
	c.mu.Unlock()

	if err := c.creds.Clear(ctx); err != nil {
		c.logger.Error("failed to clear credential", "error", err)
		c.recordIf(epoch, err)
	}
	c.notify("")
}

// Cancel aborts the in-flight gateway call, if any. The cycle then records
// the cancellation as its failure; the user message stays.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// =============================================================================
// SEND CYCLE
// =============================================================================

// SendMessage appends a user message and runs one request cycle.
//
// Blank content or a missing credential is a no-op. ErrBusy is returned
// while another cycle is in flight. Every other outcome is recorded.
func (c *Controller) SendMessage(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	cred, ok := c.credential(ctx)
	if !ok {
		return nil
	}
	return c.runCycle(ctx, cred, model.NewUserMessage(content))
}

// UploadFile attaches an image and runs one request cycle with it.
//
// A non-image media type or an oversize file is rejected with a
// *ValidationError, which is both returned and recorded.
func (c *Controller) UploadFile(ctx context.Context, up Upload) error {
	if !model.IsImageMediaType(up.MediaType) {
		verr := &ValidationError{Field: "file", Message: fmt.Sprintf("%q is not an image (got %s)", up.Name, up.MediaType)}
		c.record(verr)
		return verr
	}

	cred, ok := c.credential(ctx)
	if !ok {
		return nil
	}
	if c.State() == StateSending {
		return ErrBusy
	}

	data, err := readAll(ctx, up.Reader, c.maxUploadBytes)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			c.record(verr)
			return verr
		}
		c.logger.Error("failed to read upload", "name", up.Name, "error", err)
		c.record(fmt.Errorf("failed to read %s: %w", up.Name, err))
		return nil
	}

	return c.runCycle(ctx, cred, model.NewAttachmentMessage(up.Name, up.MediaType, data))
}

// runCycle is append, persist, complete, append, persist.
func (c *Controller) runCycle(ctx context.Context, cred string, msg model.Message) error {
	c.mu.Lock()
	if c.state == StateSending {
		c.mu.Unlock()
		return ErrBusy
	}
	c.messages = append(c.messages, msg)
	c.state = StateSending
	c.lastErr = nil
	epoch := c.epoch
	id := c.activeID
	snapshot := model.CloneMessages(c.messages)
	cycleCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	defer cancel()
	defer c.finish(epoch)

	// The user message reaches storage before the gateway is called.
	id, ok := c.persist(ctx, epoch, id, snapshot, cred)
	if !ok {
		return nil
	}

	reply, err := c.gateway.Complete(cycleCtx, cloud.FlattenMessages(snapshot))

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Debug("dropping reply for superseded conversation", "id", id)
		return nil
	}
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Warn("completion failed", "id", id, "error", err)
		return nil
	}
	c.messages = append(c.messages, model.NewAssistantMessage(reply))
	snapshot = model.CloneMessages(c.messages)
	c.mu.Unlock()

	c.persist(ctx, epoch, id, snapshot, cred)
	return nil
}

// persist writes the log with Update when id is set, else Create, and
// adopts the id storage reports. It returns false when the cycle must stop.
func (c *Controller) persist(ctx context.Context, epoch uint64, id string, msgs []model.Message, cred string) (string, bool) {
	var (
		newID string
		err   error
	)
	if id == "" {
		newID, err = c.store.Create(ctx, msgs, cred)
	} else {
		newID, err = c.store.Update(ctx, id, msgs, cred)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return id, false
	}
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Error("failed to persist conversation", "id", id, "error", err)
		return id, false
	}
	changed := newID != id
	c.activeID = newID
	c.mu.Unlock()

	if changed {
		c.logger.Debug("conversation saved", "id", newID, "fingerprint", credential.Fingerprint(cred))
		c.notify(newID)
	}
	return newID, true
}

// finish leaves Sending unless the cycle was superseded, in which case the
// state already belongs to someone else.
func (c *Controller) finish(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch == epoch {
		c.state = StateIdle
		c.cancel = nil
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// supersedeLocked cancels any in-flight cycle and invalidates its results.
// c.mu must be held.
func (c *Controller) supersedeLocked() {
	c.epoch++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = StateIdle
}

// credential returns the current key. A read failure is recorded.
func (c *Controller) credential(ctx context.Context) (string, bool) {
	cred, ok, err := c.creds.Get(ctx)
	if err != nil {
		c.record(err)
		return "", false
	}
	return cred, ok
}

func (c *Controller) record(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// recordIf records err only if no newer navigation happened since epoch.
func (c *Controller) recordIf(epoch uint64, err error) {
	c.mu.Lock()
	if c.epoch == epoch {
		c.lastErr = err
	}
	c.mu.Unlock()
}

func (c *Controller) notify(id string) {
	if c.onChatChange != nil {
		c.onChatChange(id)
	}
}

// readAll reads r fully, honoring ctx between chunks and rejecting data
// larger than limit.
func readAll(ctx context.Context, r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, &ValidationError{Field: "file", Message: "no data"}
	}
	data, err := io.ReadAll(io.LimitReader(ctxReader{ctx: ctx, r: r}, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &ValidationError{Field: "file", Message: fmt.Sprintf("exceeds maximum size of %d bytes", limit)}
	}
	return data, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
