package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ehu-labs/debate-coach/internal/engine"
)

// Handler consumes inbound user events. The conversation engine satisfies it.
type Handler interface {
	HandleEvent(ctx context.Context, ev engine.Event) error
}

// PollerOptions configures the long-poll transport.
type PollerOptions struct {
	PollTimeout    time.Duration // server-side getUpdates hold, default 30s
	HandleTimeout  time.Duration // per-event processing limit, default 2m
	MaxConcurrency int           // global in-flight event cap, default 16
}

// Poller drives the bot: it long-polls for updates and dispatches each one
// to a per-chat worker, so events from one user are handled strictly in
// order while different users proceed in parallel. It also implements the
// engine's Messenger by tracking the last bot message per chat.
type Poller struct {
	client  *Client
	handler Handler
	opts    PollerOptions

	mu      sync.Mutex
	workers map[int64]chan engine.Event
	lastMsg map[int64]int64
	sem     chan struct{}
	wg      sync.WaitGroup
}

// NewPoller creates a transport around the given API client. The handler
// is attached separately because the engine needs the poller as its
// messenger before it exists itself.
func NewPoller(client *Client, opts PollerOptions) *Poller {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = 2 * time.Minute
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 16
	}
	return &Poller{
		client:  client,
		opts:    opts,
		workers: make(map[int64]chan engine.Event),
		lastMsg: make(map[int64]int64),
		sem:     make(chan struct{}, opts.MaxConcurrency),
	}
}

// SetHandler attaches the event consumer. Must be called before Run.
func (p *Poller) SetHandler(h Handler) {
	p.handler = h
}

// Run polls until the context is cancelled, then waits for in-flight
// events to finish.
func (p *Poller) Run(ctx context.Context) error {
	if p.handler == nil {
		return errors.New("telegram: poller has no handler")
	}

	me, err := p.client.GetMe(ctx)
	if err != nil {
		return err
	}
	slog.Info("telegram connected", "bot", me.Username, "bot_id", me.ID)

	var offset int64
	for {
		updates, err := p.client.GetUpdates(ctx, offset, p.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Warn("getUpdates failed", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			p.dispatch(ctx, u)
		}
		if ctx.Err() != nil {
			break
		}
	}

	p.mu.Lock()
	for _, ch := range p.workers {
		close(ch)
	}
	p.workers = make(map[int64]chan engine.Event)
	p.mu.Unlock()
	p.wg.Wait()
	slog.Info("telegram poller stopped")
	return nil
}

// dispatch converts an update to an engine event and queues it on the
// chat's worker. Callback queries are acknowledged immediately so the
// client spinner clears even when processing takes a while.
func (p *Poller) dispatch(ctx context.Context, u Update) {
	ev, callbackID, ok := eventFromUpdate(u)
	if !ok {
		return
	}
	if callbackID != "" {
		if err := p.client.AnswerCallbackQuery(ctx, callbackID); err != nil {
			slog.Warn("answerCallbackQuery failed", "error", err)
		}
	}

	p.mu.Lock()
	ch, ok := p.workers[ev.ChatID]
	if !ok {
		ch = make(chan engine.Event, 16)
		p.workers[ev.ChatID] = ch
		p.wg.Add(1)
		go p.worker(ch)
	}
	p.mu.Unlock()

	select {
	case ch <- ev:
	default:
		// A user flooding faster than we process loses the oldest wait
		// slot; dropping beats unbounded growth.
		slog.Warn("dropping event, chat queue full", "chat_id", ev.ChatID)
	}
}

// worker processes one chat's events sequentially. The semaphore bounds
// total concurrent handler invocations across all chats.
func (p *Poller) worker(ch <-chan engine.Event) {
	defer p.wg.Done()
	for ev := range ch {
		p.sem <- struct{}{}
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.HandleTimeout)
		if err := p.handler.HandleEvent(ctx, ev); err != nil {
			slog.Error("event handling failed",
				"user_id", ev.UserID, "kind", string(ev.Kind), "error", err)
		}
		cancel()
		<-p.sem
	}
}

// eventFromUpdate maps a raw update to an engine event. Returns the
// callback query id when the update is a button press.
func eventFromUpdate(u Update) (engine.Event, string, bool) {
	if cb := u.CallbackQuery; cb != nil {
		if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
			return engine.Event{}, "", false
		}
		return engine.Event{
			UserID:   cb.From.ID,
			ChatID:   cb.Message.Chat.ID,
			Kind:     engine.EventCallback,
			Callback: cb.Data,
		}, cb.ID, true
	}

	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return engine.Event{}, "", false
	}
	// Only private chats carry the conversation flow.
	if msg.Chat.Type != "" && msg.Chat.Type != "private" {
		return engine.Event{}, "", false
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return engine.Event{}, "", false
	}

	ev := engine.Event{UserID: msg.From.ID, ChatID: msg.Chat.ID}
	if strings.HasPrefix(text, "/") {
		cmd := text[1:]
		if i := strings.IndexAny(cmd, " \t"); i >= 0 {
			cmd = cmd[:i]
		}
		// Strip a bot-name suffix like /start@MyBot.
		if i := strings.IndexByte(cmd, '@'); i >= 0 {
			cmd = cmd[:i]
		}
		ev.Kind = engine.EventCommand
		ev.Command = strings.ToLower(cmd)
		return ev, "", ev.Command != ""
	}
	ev.Kind = engine.EventText
	ev.Text = text
	return ev, "", true
}

// SendText implements engine.Messenger.
func (p *Poller) SendText(ctx context.Context, chatID int64, text string, opts *engine.SendOptions) error {
	msg, err := p.client.SendMessage(ctx, chatID, text, markupFromOptions(opts))
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.lastMsg[chatID] = msg.MessageID
	p.mu.Unlock()
	return nil
}

// EditLast implements engine.Messenger by rewriting the bot's most recent
// message in the chat. Without a tracked message, say after a restart, it
// falls back to sending a new one.
func (p *Poller) EditLast(ctx context.Context, chatID int64, text string, opts *engine.SendOptions) error {
	p.mu.Lock()
	messageID, ok := p.lastMsg[chatID]
	p.mu.Unlock()
	if !ok {
		return p.SendText(ctx, chatID, text, opts)
	}
	if err := p.client.EditMessageText(ctx, chatID, messageID, text, markupFromOptions(opts)); err != nil {
		// Edits fail when the message is too old or unchanged; degrade to
		// a fresh send rather than losing the reply.
		slog.Debug("editMessageText failed, sending instead", "chat_id", chatID, "error", err)
		return p.SendText(ctx, chatID, text, opts)
	}
	return nil
}

func markupFromOptions(opts *engine.SendOptions) *InlineKeyboardMarkup {
	if opts == nil || len(opts.Buttons) == 0 {
		return nil
	}
	rows := make([][]InlineKeyboardButton, 0, len(opts.Buttons))
	for _, row := range opts.Buttons {
		buttons := make([]InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, InlineKeyboardButton{Text: b.Label, CallbackData: b.Data})
		}
		rows = append(rows, buttons)
	}
	return &InlineKeyboardMarkup{InlineKeyboard: rows}
}
