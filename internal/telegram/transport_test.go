package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ehu-labs/debate-coach/internal/engine"
)

func TestEventFromUpdateText(t *testing.T) {
	u := Update{Message: &Message{
		Text: "  hello there  ",
		From: &User{ID: 42},
		Chat: &Chat{ID: 42, Type: "private"},
	}}

	ev, cbID, ok := eventFromUpdate(u)
	if !ok || cbID != "" {
		t.Fatalf("ok = %v, cbID = %q", ok, cbID)
	}
	if ev.Kind != engine.EventText || ev.Text != "hello there" {
		t.Errorf("event = %+v", ev)
	}
	if ev.UserID != 42 || ev.ChatID != 42 {
		t.Errorf("ids = %d/%d", ev.UserID, ev.ChatID)
	}
}

func TestEventFromUpdateCommand(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/start", "start"},
		{"/Topic", "topic"},
		{"/start@DebateCoachBot", "start"},
		{"/topic some trailing words", "topic"},
	}

	for _, tt := range tests {
		u := Update{Message: &Message{
			Text: tt.text,
			From: &User{ID: 1},
			Chat: &Chat{ID: 1, Type: "private"},
		}}
		ev, _, ok := eventFromUpdate(u)
		if !ok {
			t.Fatalf("%q: rejected", tt.text)
		}
		if ev.Kind != engine.EventCommand || ev.Command != tt.want {
			t.Errorf("%q: event = %+v, want command %q", tt.text, ev, tt.want)
		}
	}
}

func TestEventFromUpdateCallback(t *testing.T) {
	u := Update{CallbackQuery: &CallbackQuery{
		ID:      "cb7",
		Data:    "side:for",
		From:    &User{ID: 42},
		Message: &Message{Chat: &Chat{ID: 42}},
	}}

	ev, cbID, ok := eventFromUpdate(u)
	if !ok {
		t.Fatal("callback rejected")
	}
	if cbID != "cb7" {
		t.Errorf("cbID = %q, want cb7", cbID)
	}
	if ev.Kind != engine.EventCallback || ev.Callback != "side:for" {
		t.Errorf("event = %+v", ev)
	}
}

func TestEventFromUpdateFilters(t *testing.T) {
	tests := []struct {
		name string
		u    Update
	}{
		{"empty update", Update{}},
		{"bot message", Update{Message: &Message{
			Text: "hi", From: &User{ID: 1, IsBot: true}, Chat: &Chat{ID: 1, Type: "private"}}}},
		{"group message", Update{Message: &Message{
			Text: "hi", From: &User{ID: 1}, Chat: &Chat{ID: 1, Type: "supergroup"}}}},
		{"empty text", Update{Message: &Message{
			Text: "   ", From: &User{ID: 1}, Chat: &Chat{ID: 1, Type: "private"}}}},
		{"bare slash", Update{Message: &Message{
			Text: "/", From: &User{ID: 1}, Chat: &Chat{ID: 1, Type: "private"}}}},
	}

	for _, tt := range tests {
		if _, _, ok := eventFromUpdate(tt.u); ok {
			t.Errorf("%s: accepted, want rejected", tt.name)
		}
	}
}

func TestMarkupFromOptions(t *testing.T) {
	if got := markupFromOptions(nil); got != nil {
		t.Errorf("nil options = %+v, want nil", got)
	}
	if got := markupFromOptions(&engine.SendOptions{}); got != nil {
		t.Errorf("empty options = %+v, want nil", got)
	}

	markup := markupFromOptions(&engine.SendOptions{Buttons: [][]engine.Button{
		{{Label: "For", Data: "side:for"}, {Label: "Against", Data: "side:against"}},
		{{Label: "Cancel", Data: "cancel"}},
	}})
	if len(markup.InlineKeyboard) != 2 || len(markup.InlineKeyboard[0]) != 2 {
		t.Fatalf("markup = %+v", markup)
	}
	if markup.InlineKeyboard[0][0].CallbackData != "side:for" {
		t.Errorf("button data = %q", markup.InlineKeyboard[0][0].CallbackData)
	}
}

func TestPollerEditLastFallsBackToSend(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[len("/bottok/"):]
		methods = append(methods, method)
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": Message{MessageID: 5}})
	}))
	defer srv.Close()

	p := NewPoller(NewClient(srv.Client(), srv.URL, "tok"), PollerOptions{})
	ctx := context.Background()

	// No tracked message yet: EditLast degrades to a send.
	if err := p.EditLast(ctx, 42, "first", nil); err != nil {
		t.Fatalf("EditLast: %v", err)
	}
	if len(methods) != 1 || methods[0] != "sendMessage" {
		t.Fatalf("methods = %v, want [sendMessage]", methods)
	}

	// With a tracked message it edits in place.
	if err := p.EditLast(ctx, 42, "second", nil); err != nil {
		t.Fatalf("EditLast: %v", err)
	}
	if methods[len(methods)-1] != "editMessageText" {
		t.Errorf("methods = %v, want editMessageText last", methods)
	}
}

func TestPollerSendTextTracksMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": Message{MessageID: 31}})
	}))
	defer srv.Close()

	p := NewPoller(NewClient(srv.Client(), srv.URL, "tok"), PollerOptions{})
	if err := p.SendText(context.Background(), 42, "hi", nil); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if got := p.lastMsg[42]; got != 31 {
		t.Errorf("lastMsg = %d, want 31", got)
	}
}
