package mail

import (
	"strings"
	"testing"
)

func TestBuildMessage(t *testing.T) {
	msg := BuildMessage("bot@example.com", "student@ehu.lt", "123456")

	for _, want := range []string{
		"From: bot@example.com\r\n",
		"To: student@ehu.lt\r\n",
		"Subject: Your Verification Code\r\n",
		"Content-Type: text/html; charset=utf-8\r\n",
		"123456",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}

	// Headers end with a blank line before the body.
	if !strings.Contains(msg, "\r\n\r\n") {
		t.Error("no header/body separator")
	}
}

func TestRenderTemplate(t *testing.T) {
	body := RenderTemplate("987654")
	if !strings.Contains(body, "987654") {
		t.Error("code not rendered into template")
	}
	if strings.Contains(body, "{{ verification_code }}") {
		t.Error("placeholder left in rendered template")
	}
}
