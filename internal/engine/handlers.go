package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ehu-labs/debate-coach/internal/domain"
	"github.com/ehu-labs/debate-coach/internal/metrics"
	"github.com/ehu-labs/debate-coach/internal/store"
)

// handleFirstContact creates the session record and greets the user. Every
// event from an unknown user lands here regardless of kind.
func (e *Engine) handleFirstContact(ctx context.Context, ev Event) error {
	now := time.Now()
	s := &domain.Session{
		UserID:    ev.UserID,
		State:     domain.StateNew,
		Language:  e.cfg.DefaultLanguage,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.repo.Create(ctx, s); err != nil {
		if errors.Is(err, domain.ErrSessionExists) {
			// Lost a create race with ourselves; reload and retry once.
			return e.HandleEvent(ctx, ev)
		}
		metrics.CollaboratorFailures.WithLabelValues("store").Inc()
		e.notify(ctx, nil, ev.ChatID, "retry_later", nil, nil)
		return fmt.Errorf("create session for user %d: %w", ev.UserID, err)
	}
	slog.Info("new user", "user_id", ev.UserID)
	return e.say(ctx, s, ev.ChatID, "welcome", nil, e.registerButtons(s))
}

// handleUnknownState deals with a persisted state outside the enumerated
// set, which can only come from a schema change or manual edit. The record
// is reset to the entry state rather than wedging the user forever.
func (e *Engine) handleUnknownState(ctx context.Context, s *domain.Session, ev Event) error {
	slog.Error("unknown persisted state, resetting session",
		"user_id", s.UserID, "state", string(s.State))
	if err := e.transition(ctx, s, store.Patch{}, domain.StateNew); err != nil {
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return fmt.Errorf("reset user %d from unknown state: %w", s.UserID, err)
	}
	return e.say(ctx, s, ev.ChatID, "welcome", nil, e.registerButtons(s))
}

// rejectOutOfOrder answers an event that has no meaning in the current
// state with the guidance message for that state.
func (e *Engine) rejectOutOfOrder(ctx context.Context, s *domain.Session, ev Event) error {
	slog.Debug("out of order event",
		"user_id", s.UserID, "state", string(s.State), "kind", string(ev.Kind), "name", ev.name())
	if !s.State.Registered() {
		return e.respond(ctx, s, ev, "finish_registration_first", nil, nil)
	}
	return e.renderStatePrompt(ctx, s, ev.ChatID)
}

// renderStatePrompt tells the user what the machine is waiting for. Used
// by /start and as the generic nudge after a cancel or stray input.
func (e *Engine) renderStatePrompt(ctx context.Context, s *domain.Session, chatID int64) error {
	switch s.State {
	case domain.StateNew:
		return e.say(ctx, s, chatID, "welcome", nil, e.registerButtons(s))
	case domain.StateAwaitingEmail:
		return e.say(ctx, s, chatID, "prompt_email", e.domainSubs(), nil)
	case domain.StateAwaitingCode:
		return e.say(ctx, s, chatID, "prompt_code", nil, e.resendButtons(s))
	case domain.StateVerified:
		return e.say(ctx, s, chatID, "welcome_back", nil, nil)
	case domain.StateAwaitingTopic:
		return e.say(ctx, s, chatID, "prompt_topic", nil, e.cancelButtons(s))
	case domain.StateAwaitingSide:
		return e.say(ctx, s, chatID, "prompt_side", map[string]string{"topic": s.Topic}, e.sideButtons(s))
	case domain.StateChatting:
		return e.say(ctx, s, chatID, "chat_ready", map[string]string{"topic": s.Topic, "side": string(s.Side)}, nil)
	}
	return e.say(ctx, s, chatID, "welcome", nil, e.registerButtons(s))
}

// handleRegister starts email verification for a fresh user.
func (e *Engine) handleRegister(ctx context.Context, s *domain.Session, ev Event) error {
	if err := e.transition(ctx, s, store.Patch{}, domain.StateAwaitingEmail); err != nil {
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return fmt.Errorf("start registration for user %d: %w", s.UserID, err)
	}
	return e.respond(ctx, s, ev, "prompt_email", e.domainSubs(), nil)
}

// handleRegisterAgain re-prompts without touching the record, so pressing
// the register button twice is harmless.
func (e *Engine) handleRegisterAgain(ctx context.Context, s *domain.Session, ev Event) error {
	return e.respond(ctx, s, ev, "prompt_email", e.domainSubs(), nil)
}

// handleNewText nudges a user who typed before registering.
func (e *Engine) handleNewText(ctx context.Context, s *domain.Session, ev Event) error {
	return e.say(ctx, s, ev.ChatID, "already_started", nil, e.registerButtons(s))
}

// handleEmail validates the submitted address, persists it together with a
// fresh verification code, and only then attempts delivery. A failed mail
// send leaves the state unchanged so the user can simply retry.
func (e *Engine) handleEmail(ctx context.Context, s *domain.Session, ev Event) error {
	email := strings.TrimSpace(ev.Text)
	if !EmailAllowed(email, e.cfg.AllowedEmailDomains) {
		return e.say(ctx, s, ev.ChatID, "invalid_email", e.domainSubs(), nil)
	}

	code, err := GenerateCode(e.cfg.CodeLength)
	if err != nil {
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return err
	}

	// Persist first. If delivery then fails we keep the code and stay in
	// AWAITING_EMAIL; nothing was promised to the user yet.
	patch := store.Patch{Email: &email, VerificationCode: &code}
	if err := e.repo.Update(ctx, s.UserID, patch); err != nil {
		metrics.CollaboratorFailures.WithLabelValues("store").Inc()
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return fmt.Errorf("persist email for user %d: %w", s.UserID, err)
	}
	applyPatch(s, patch)

	if err := e.mailer.Send(ctx, email, code); err != nil {
		metrics.CollaboratorFailures.WithLabelValues("mailer").Inc()
		slog.Error("verification mail failed", "user_id", s.UserID, "error", err)
		return e.say(ctx, s, ev.ChatID, "email_send_failed", nil, nil)
	}

	if err := e.transition(ctx, s, store.Patch{}, domain.StateAwaitingCode); err != nil {
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return fmt.Errorf("advance user %d to code check: %w", s.UserID, err)
	}
	slog.Info("verification code sent", "user_id", s.UserID)
	return e.say(ctx, s, ev.ChatID, "code_sent", map[string]string{"email": email}, e.resendButtons(s))
}

// handleCode compares the submitted code against the stored one. On match
// the code is cleared and the user becomes verified.
func (e *Engine) handleCode(ctx context.Context, s *domain.Session, ev Event) error {
	// A missing stored code means the record was mangled; restart the
	// email step instead of rejecting every guess forever.
	if s.VerificationCode == "" {
		slog.Error("awaiting code with no stored code", "user_id", s.UserID)
		if err := e.transition(ctx, s, store.Patch{}, domain.StateAwaitingEmail); err != nil {
			e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
			return fmt.Errorf("reset user %d to email step: %w", s.UserID, err)
		}
		return e.say(ctx, s, ev.ChatID, "prompt_email", e.domainSubs(), nil)
	}

	if strings.TrimSpace(ev.Text) != s.VerificationCode {
		return e.say(ctx, s, ev.ChatID, "code_incorrect", nil, e.resendButtons(s))
	}

	empty := ""
	if err := e.transition(ctx, s, store.Patch{VerificationCode: &empty}, domain.StateVerified); err != nil {
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return fmt.Errorf("verify user %d: %w", s.UserID, err)
	}
	slog.Info("user verified", "user_id", s.UserID, "email", s.Email)
	return e.say(ctx, s, ev.ChatID, "verified", nil, nil)
}

// handleResend issues a fresh code to the stored address. The new code is
// persisted before the mail goes out so the record never references a code
// that was never written.
func (e *Engine) handleResend(ctx context.Context, s *domain.Session, ev Event) error {
	if s.Email == "" {
		slog.Error("resend requested with no stored email", "user_id", s.UserID)
		if err := e.transition(ctx, s, store.Patch{}, domain.StateAwaitingEmail); err != nil {
			e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
			return fmt.Errorf("reset user %d to email step: %w", s.UserID, err)
		}
		return e.respond(ctx, s, ev, "prompt_email", e.domainSubs(), nil)
	}

	code, err := GenerateCode(e.cfg.CodeLength)
	if err != nil {
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return err
	}

	patch := store.Patch{VerificationCode: &code}
	if err := e.repo.Update(ctx, s.UserID, patch); err != nil {
		metrics.CollaboratorFailures.WithLabelValues("store").Inc()
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return fmt.Errorf("persist resent code for user %d: %w", s.UserID, err)
	}
	applyPatch(s, patch)

	if err := e.mailer.Send(ctx, s.Email, code); err != nil {
		metrics.CollaboratorFailures.WithLabelValues("mailer").Inc()
		slog.Error("verification mail failed", "user_id", s.UserID, "error", err)
		return e.respond(ctx, s, ev, "resend_failed", nil, e.resendButtons(s))
	}
	return e.respond(ctx, s, ev, "code_resent", map[string]string{"email": s.Email}, e.resendButtons(s))
}

// handleVerifyPrompt repeats the code prompt on request.
func (e *Engine) handleVerifyPrompt(ctx context.Context, s *domain.Session, ev Event) error {
	return e.say(ctx, s, ev.ChatID, "prompt_code", nil, e.resendButtons(s))
}

// handleResendVerified answers a stale resend button on an old message
// after verification already succeeded.
func (e *Engine) handleResendVerified(ctx context.Context, s *domain.Session, ev Event) error {
	return e.respond(ctx, s, ev, "already_verified", nil, nil)
}

// handleTopicRequest enters the topic sub-flow, remembering where to return
// on cancel.
func (e *Engine) handleTopicRequest(ctx context.Context, s *domain.Session, ev Event) error {
	e.sessions.SetPrevious(s.UserID, s.State)
	if err := e.transition(ctx, s, store.Patch{}, domain.StateAwaitingTopic); err != nil {
		e.sessions.ClearPrevious(s.UserID)
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return fmt.Errorf("enter topic flow for user %d: %w", s.UserID, err)
	}
	return e.say(ctx, s, ev.ChatID, "prompt_topic", nil, e.cancelButtons(s))
}

// handleNeedsTopic nudges a verified user who typed chat text before
// choosing a topic.
func (e *Engine) handleNeedsTopic(ctx context.Context, s *domain.Session, ev Event) error {
	return e.say(ctx, s, ev.ChatID, "set_topic_first", nil, nil)
}

// handleTopic stores the submitted topic and moves on to side selection.
// Changing topic always clears the conversation history.
func (e *Engine) handleTopic(ctx context.Context, s *domain.Session, ev Event) error {
	topic := strings.TrimSpace(ev.Text)
	if topic == "" {
		return e.say(ctx, s, ev.ChatID, "invalid_topic", nil, e.cancelButtons(s))
	}
	if err := e.transition(ctx, s, store.Patch{Topic: &topic}, domain.StateAwaitingSide); err != nil {
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return fmt.Errorf("set topic for user %d: %w", s.UserID, err)
	}
	e.sessions.ClearHistory(s.UserID)
	return e.say(ctx, s, ev.ChatID, "prompt_side", map[string]string{"topic": topic}, e.sideButtons(s))
}

// handleSideRequest enters the side sub-flow from an active chat.
func (e *Engine) handleSideRequest(ctx context.Context, s *domain.Session, ev Event) error {
	e.sessions.SetPrevious(s.UserID, s.State)
	if err := e.transition(ctx, s, store.Patch{}, domain.StateAwaitingSide); err != nil {
		e.sessions.ClearPrevious(s.UserID)
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return fmt.Errorf("enter side flow for user %d: %w", s.UserID, err)
	}
	return e.say(ctx, s, ev.ChatID, "prompt_side", map[string]string{"topic": s.Topic}, e.sideButtons(s))
}

// handleSide records the chosen stance and opens the chat. Changing side
// clears the conversation history for the same reason a topic change does.
func (e *Engine) handleSide(ctx context.Context, s *domain.Session, ev Event) error {
	side, err := domain.ParseSide(ev.arg())
	if err != nil {
		slog.Warn("invalid side token", "user_id", s.UserID, "token", ev.Callback)
		return e.respond(ctx, s, ev, "prompt_side", map[string]string{"topic": s.Topic}, e.sideButtons(s))
	}
	if s.Topic == "" {
		// Side without topic cannot happen through the normal flow.
		slog.Error("awaiting side with no stored topic", "user_id", s.UserID)
		if err := e.transition(ctx, s, store.Patch{}, domain.StateAwaitingTopic); err != nil {
			e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
			return fmt.Errorf("reset user %d to topic step: %w", s.UserID, err)
		}
		return e.respond(ctx, s, ev, "prompt_topic", nil, e.cancelButtons(s))
	}
	if err := e.transition(ctx, s, store.Patch{Side: &side}, domain.StateChatting); err != nil {
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return fmt.Errorf("set side for user %d: %w", s.UserID, err)
	}
	e.sessions.ClearHistory(s.UserID)
	e.sessions.ClearPrevious(s.UserID)
	subs := map[string]string{"topic": s.Topic, "side": string(side)}
	if err := e.respond(ctx, s, ev, "side_set", subs, nil); err != nil {
		return err
	}
	return e.say(ctx, s, ev.ChatID, "chat_ready", subs, nil)
}

// handleSideText re-prompts when the user types instead of pressing a
// stance button.
func (e *Engine) handleSideText(ctx context.Context, s *domain.Session, ev Event) error {
	return e.say(ctx, s, ev.ChatID, "prompt_side", map[string]string{"topic": s.Topic}, e.sideButtons(s))
}

// handleCancel leaves the topic/side sub-flow and restores the state the
// user came from. Without a snapshot the destination is inferred from the
// sub-flow itself.
func (e *Engine) handleCancel(ctx context.Context, s *domain.Session, ev Event) error {
	target, ok := e.sessions.Previous(s.UserID)
	if !ok {
		switch s.State {
		case domain.StateAwaitingSide:
			target = domain.StateChatting
		default:
			target = domain.StateVerified
		}
	}
	// Returning to chat requires a complete topic/side pairing.
	if target == domain.StateChatting && (s.Topic == "" || s.Side == "") {
		target = domain.StateVerified
	}
	if err := e.transition(ctx, s, store.Patch{}, target); err != nil {
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return fmt.Errorf("cancel sub-flow for user %d: %w", s.UserID, err)
	}
	e.sessions.ClearPrevious(s.UserID)
	if err := e.respond(ctx, s, ev, "cancelled", nil, nil); err != nil {
		return err
	}
	return e.renderStatePrompt(ctx, s, ev.ChatID)
}

// handleChat relays a chat message to the assistant backend. The user turn
// stays in history even when the backend fails, so a retry carries the
// full exchange.
func (e *Engine) handleChat(ctx context.Context, s *domain.Session, ev Event) error {
	if !s.ReadyToChat() {
		slog.Error("chatting state with incomplete topic/side", "user_id", s.UserID)
		if err := e.transition(ctx, s, store.Patch{}, domain.StateVerified); err != nil {
			e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
			return fmt.Errorf("reset user %d from incomplete chat: %w", s.UserID, err)
		}
		return e.say(ctx, s, ev.ChatID, "set_topic_first", nil, nil)
	}

	e.sessions.AppendTurn(s.UserID, domain.Turn{Role: domain.RoleUser, Content: ev.Text})

	reply, err := e.backend.Reply(ctx, DebatePrompt(s.Topic, s.Side), e.sessions.Turns(s.UserID))
	if err != nil {
		metrics.CollaboratorFailures.WithLabelValues("assistant").Inc()
		slog.Error("assistant call failed", "user_id", s.UserID, "error", err)
		return e.say(ctx, s, ev.ChatID, "assistant_error", nil, nil)
	}

	e.sessions.AppendTurn(s.UserID, domain.Turn{Role: domain.RoleAssistant, Content: reply})
	return e.messenger.SendText(ctx, ev.ChatID, reply, nil)
}

// handleDelete purges the durable record and all transient state. The
// next event from the same user starts over from scratch.
func (e *Engine) handleDelete(ctx context.Context, s *domain.Session, ev Event) error {
	if err := e.repo.Delete(ctx, s.UserID); err != nil {
		metrics.CollaboratorFailures.WithLabelValues("store").Inc()
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return fmt.Errorf("delete session for user %d: %w", s.UserID, err)
	}
	e.sessions.Drop(s.UserID)
	slog.Info("session deleted", "user_id", s.UserID)
	return e.say(ctx, s, ev.ChatID, "deleted", nil, nil)
}

// handleLanguagePrompt offers the available message table languages.
func (e *Engine) handleLanguagePrompt(ctx context.Context, s *domain.Session, ev Event) error {
	return e.say(ctx, s, ev.ChatID, "prompt_language", nil, e.langButtons())
}

// handleLanguage persists the selected interface language.
func (e *Engine) handleLanguage(ctx context.Context, s *domain.Session, ev Event) error {
	lang := ev.arg()
	known := false
	for _, l := range e.catalog.Languages() {
		if l == lang {
			known = true
			break
		}
	}
	if !known {
		return e.respond(ctx, s, ev, "prompt_language", nil, e.langButtons())
	}
	patch := store.Patch{Language: &lang}
	if err := e.repo.Update(ctx, s.UserID, patch); err != nil {
		metrics.CollaboratorFailures.WithLabelValues("store").Inc()
		e.notify(ctx, s, ev.ChatID, "retry_later", nil, nil)
		return fmt.Errorf("set language for user %d: %w", s.UserID, err)
	}
	applyPatch(s, patch)
	if err := e.respond(ctx, s, ev, "language_set", map[string]string{"language": e.catalog.LanguageName(lang)}, nil); err != nil {
		return err
	}
	// An unregistered user gets the registration offer again in the new
	// language.
	if s.State == domain.StateNew {
		return e.say(ctx, s, ev.ChatID, "welcome", nil, e.registerButtons(s))
	}
	return nil
}

func (e *Engine) domainSubs() map[string]string {
	return map[string]string{"domains": strings.Join(e.cfg.AllowedEmailDomains, " or ")}
}

func (e *Engine) registerButtons(s *domain.Session) [][]Button {
	return [][]Button{{{Label: e.catalog.Lookup(e.lang(s), "btn_register", nil), Data: "register"}}}
}

func (e *Engine) resendButtons(s *domain.Session) [][]Button {
	return [][]Button{{{Label: e.catalog.Lookup(e.lang(s), "btn_resend", nil), Data: "resend"}}}
}

func (e *Engine) cancelButtons(s *domain.Session) [][]Button {
	return [][]Button{{{Label: e.catalog.Lookup(e.lang(s), "btn_cancel", nil), Data: "cancel"}}}
}

func (e *Engine) sideButtons(s *domain.Session) [][]Button {
	lang := e.lang(s)
	return [][]Button{
		{
			{Label: e.catalog.Lookup(lang, "btn_for", nil), Data: "side:for"},
			{Label: e.catalog.Lookup(lang, "btn_against", nil), Data: "side:against"},
		},
		{{Label: e.catalog.Lookup(lang, "btn_cancel", nil), Data: "cancel"}},
	}
}

func (e *Engine) langButtons() [][]Button {
	var rows [][]Button
	for _, lang := range e.catalog.Languages() {
		rows = append(rows, []Button{{Label: e.catalog.LanguageName(lang), Data: "lang:" + lang}})
	}
	return rows
}
