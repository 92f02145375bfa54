package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"WalletChat/sdk/go/walletchat"
)

type scriptedSender struct {
	sent []string
}

func (s *scriptedSender) Send(_ context.Context, userID, text string) (walletchat.Reply, error) {
	s.sent = append(s.sent, userID+":"+text)
	if text == "boom" {
		return walletchat.Reply{}, errors.New("server unavailable")
	}
	if text == "/help" {
		return walletchat.Reply{
			Messages: []string{"Here's what I can do:"},
			Buttons:  []walletchat.Button{{Label: "Login", Command: "/login"}, {Label: "Logout", Command: "/logout"}},
		}, nil
	}
	return walletchat.Reply{Messages: []string{"ok " + text}}, nil
}

func TestREPL(t *testing.T) {
	client := &scriptedSender{}
	var out bytes.Buffer
	in := strings.NewReader("/help\n\n  boom \nhello\n")

	if err := repl(context.Background(), client, "alice", in, &out); err != nil {
		t.Fatalf("repl: %v", err)
	}
	if len(client.sent) != 3 || client.sent[1] != "alice:boom" {
		t.Fatalf("blank lines must be skipped and input trimmed: %v", client.sent)
	}
	got := out.String()
	for _, want := range []string{"[Login: /login] [Logout: /logout]", "error: server unavailable", "ok hello"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestREPLStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &scriptedSender{}
	if err := repl(ctx, client, "alice", strings.NewReader("hello\n"), &bytes.Buffer{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(client.sent) != 0 {
		t.Fatalf("nothing must be sent after cancel: %v", client.sent)
	}
}
