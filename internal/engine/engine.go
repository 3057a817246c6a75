// Package engine implements the per-user conversation state machine.
//
// All business rules about when a user may register, verify an email,
// set a debate topic or side, or chat with the assistant live here. The
// surrounding transport, record store, notification channel and model
// backend are collaborators reached through narrow interfaces, and the
// engine persists every state change before acting on it.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ehu-labs/debate-coach/internal/assistant"
	"github.com/ehu-labs/debate-coach/internal/catalog"
	"github.com/ehu-labs/debate-coach/internal/domain"
	"github.com/ehu-labs/debate-coach/internal/metrics"
	"github.com/ehu-labs/debate-coach/internal/store"
)

// EventKind categorizes inbound user events.
type EventKind string

const (
	// EventCommand is a slash command such as /start or /topic.
	EventCommand EventKind = "command"
	// EventText is free-form text input.
	EventText EventKind = "text"
	// EventCallback is a button press carrying an opaque token.
	EventCallback EventKind = "callback"
)

// Event is a single inbound user event delivered by the transport.
type Event struct {
	UserID   int64
	ChatID   int64
	Kind     EventKind
	Command  string // command name without the leading slash
	Text     string // free text payload
	Callback string // callback token, e.g. "register" or "side:for"
}

// name returns the dispatch name of the event: the command name, the
// callback token prefix, or empty for free text.
func (ev Event) name() string {
	switch ev.Kind {
	case EventCommand:
		return ev.Command
	case EventCallback:
		if i := strings.IndexByte(ev.Callback, ':'); i >= 0 {
			return ev.Callback[:i]
		}
		return ev.Callback
	}
	return ""
}

// arg returns the payload after the callback token prefix, if any.
func (ev Event) arg() string {
	if i := strings.IndexByte(ev.Callback, ':'); i >= 0 {
		return ev.Callback[i+1:]
	}
	return ""
}

// Button is a labelled choice attached to an outbound prompt. Data is
// the opaque callback token returned when the user picks it.
type Button struct {
	Label string
	Data  string
}

// SendOptions carries optional attachments for an outbound message.
type SendOptions struct {
	Buttons [][]Button
}

// Messenger delivers outbound messages back to the user.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, opts *SendOptions) error
	EditLast(ctx context.Context, chatID int64, text string, opts *SendOptions) error
}

// Mailer sends a verification code to an email address.
type Mailer interface {
	Send(ctx context.Context, to, code string) error
}

// Config holds the engine's validation parameters.
type Config struct {
	AllowedEmailDomains []string
	CodeLength          int
	DefaultLanguage     string
}

// Engine is the conversation state machine plus its transition handlers.
type Engine struct {
	repo      store.Repository
	mailer    Mailer
	backend   assistant.Backend
	messenger Messenger
	catalog   *catalog.Catalog
	sessions  *Sessions
	cfg       Config

	transitions map[transitionKey]handlerFunc
}

type transitionKey struct {
	state domain.State
	kind  EventKind
	name  string
}

type handlerFunc func(e *Engine, ctx context.Context, s *domain.Session, ev Event) error

// New creates a conversation engine.
func New(repo store.Repository, mailer Mailer, backend assistant.Backend, messenger Messenger, cat *catalog.Catalog, cfg Config) *Engine {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	e := &Engine{
		repo:      repo,
		mailer:    mailer,
		backend:   backend,
		messenger: messenger,
		catalog:   cat,
		sessions:  NewSessions(),
		cfg:       cfg,
	}
	e.transitions = map[transitionKey]handlerFunc{
		{domain.StateNew, EventCallback, "register"}: (*Engine).handleRegister,
		{domain.StateNew, EventCommand, "register"}:  (*Engine).handleRegister,
		{domain.StateNew, EventText, ""}:             (*Engine).handleNewText,

		// Repeated register requests while already awaiting an email are
		// answered with the same prompt and no store write.
		{domain.StateAwaitingEmail, EventCallback, "register"}: (*Engine).handleRegisterAgain,
		{domain.StateAwaitingEmail, EventCommand, "register"}:  (*Engine).handleRegisterAgain,
		{domain.StateAwaitingEmail, EventText, ""}:             (*Engine).handleEmail,

		{domain.StateAwaitingCode, EventText, ""}:           (*Engine).handleCode,
		{domain.StateAwaitingCode, EventCallback, "resend"}: (*Engine).handleResend,
		{domain.StateAwaitingCode, EventCommand, "verify"}:  (*Engine).handleVerifyPrompt,

		{domain.StateVerified, EventCommand, "topic"}:   (*Engine).handleTopicRequest,
		{domain.StateVerified, EventCommand, "side"}:    (*Engine).handleNeedsTopic,
		{domain.StateVerified, EventCallback, "resend"}: (*Engine).handleResendVerified,
		{domain.StateVerified, EventText, ""}:           (*Engine).handleNeedsTopic,

		{domain.StateAwaitingTopic, EventText, ""}:           (*Engine).handleTopic,
		{domain.StateAwaitingTopic, EventCallback, "cancel"}: (*Engine).handleCancel,

		{domain.StateAwaitingSide, EventCallback, "side"}:   (*Engine).handleSide,
		{domain.StateAwaitingSide, EventCallback, "cancel"}: (*Engine).handleCancel,
		{domain.StateAwaitingSide, EventText, ""}:           (*Engine).handleSideText,

		{domain.StateChatting, EventText, ""}:           (*Engine).handleChat,
		{domain.StateChatting, EventCommand, "topic"}:   (*Engine).handleTopicRequest,
		{domain.StateChatting, EventCommand, "side"}:    (*Engine).handleSideRequest,
		{domain.StateChatting, EventCallback, "resend"}: (*Engine).handleResendVerified,
	}
	return e
}

// HandleEvent processes one inbound event to completion. The transport
// guarantees at most one in-flight event per user, so handlers never
// race on the same session.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) error {
	metrics.Events.WithLabelValues(string(ev.Kind)).Inc()

	s, err := e.repo.Get(ctx, ev.UserID)
	if err != nil {
		metrics.CollaboratorFailures.WithLabelValues("store").Inc()
		e.notify(ctx, nil, ev.ChatID, "retry_later", nil, nil)
		return err
	}

	// Any event for an unknown user starts registration; it never
	// silently no-ops.
	if s == nil {
		return e.handleFirstContact(ctx, ev)
	}

	if !s.State.Valid() {
		return e.handleUnknownState(ctx, s, ev)
	}

	// Events meaningful in every state.
	switch {
	case ev.Kind == EventCommand && ev.Command == "start":
		return e.renderStatePrompt(ctx, s, ev.ChatID)
	case ev.Kind == EventCommand && ev.Command == "delete":
		return e.handleDelete(ctx, s, ev)
	case ev.Kind == EventCommand && ev.Command == "language":
		return e.handleLanguagePrompt(ctx, s, ev)
	case ev.Kind == EventCallback && ev.name() == "lang":
		return e.handleLanguage(ctx, s, ev)
	}

	if handler, ok := e.transitions[transitionKey{s.State, ev.Kind, ev.name()}]; ok {
		return handler(e, ctx, s, ev)
	}

	return e.rejectOutOfOrder(ctx, s, ev)
}

// transition persists the patch together with the new state, then applies
// both to the in-memory session. Nothing changes unless the durable write
// succeeds.
func (e *Engine) transition(ctx context.Context, s *domain.Session, patch store.Patch, to domain.State) error {
	patch.State = &to
	if err := e.repo.Update(ctx, s.UserID, patch); err != nil {
		metrics.CollaboratorFailures.WithLabelValues("store").Inc()
		return err
	}
	metrics.Transitions.WithLabelValues(string(s.State), string(to)).Inc()
	applyPatch(s, patch)
	return nil
}

func applyPatch(s *domain.Session, patch store.Patch) {
	if patch.State != nil {
		s.State = *patch.State
	}
	if patch.Email != nil {
		s.Email = *patch.Email
	}
	if patch.VerificationCode != nil {
		s.VerificationCode = *patch.VerificationCode
	}
	if patch.Topic != nil {
		s.Topic = *patch.Topic
	}
	if patch.Side != nil {
		s.Side = *patch.Side
	}
	if patch.Language != nil {
		s.Language = *patch.Language
	}
	s.UpdatedAt = time.Now()
}

// lang returns the locale for catalog lookups.
func (e *Engine) lang(s *domain.Session) string {
	if s != nil && s.Language != "" {
		return s.Language
	}
	return e.cfg.DefaultLanguage
}

// say sends a catalog message to the chat.
func (e *Engine) say(ctx context.Context, s *domain.Session, chatID int64, key string, subs map[string]string, buttons [][]Button) error {
	text := e.catalog.Lookup(e.lang(s), key, subs)
	return e.messenger.SendText(ctx, chatID, text, sendOptions(buttons))
}

// respond answers an event in place: button presses edit the prompt they
// came from, everything else gets a fresh message.
func (e *Engine) respond(ctx context.Context, s *domain.Session, ev Event, key string, subs map[string]string, buttons [][]Button) error {
	text := e.catalog.Lookup(e.lang(s), key, subs)
	if ev.Kind == EventCallback {
		return e.messenger.EditLast(ctx, ev.ChatID, text, sendOptions(buttons))
	}
	return e.messenger.SendText(ctx, ev.ChatID, text, sendOptions(buttons))
}

// notify is a best-effort say used on failure paths; delivery problems
// are logged, not propagated, so the original error stays primary.
func (e *Engine) notify(ctx context.Context, s *domain.Session, chatID int64, key string, subs map[string]string, buttons [][]Button) {
	if err := e.say(ctx, s, chatID, key, subs, buttons); err != nil {
		slog.Error("failed to deliver message", "chat_id", chatID, "key", key, "error", err)
	}
}

func sendOptions(buttons [][]Button) *SendOptions {
	if len(buttons) == 0 {
		return nil
	}
	return &SendOptions{Buttons: buttons}
}
