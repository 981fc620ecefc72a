package notifier

import (
	"context"
	"testing"

	"planwork/internal/eventbus"
	logx "planwork/pkg/logx"
)

func TestNewDisabledIsInert(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Enabled: false}, logx.Nop(), eventbus.New())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if s.Enabled() {
		t.Fatal("disabled notifier reports enabled")
	}

	// Start/Stop on the inert service are safe no-ops.
	s.Start(context.Background())
	s.Stop(context.Background())
}

func TestNewEnabledRequiresCredentials(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Enabled: true, ChatID: 42}, logx.Nop(), eventbus.New()); err == nil {
		t.Fatal("enabled notifier accepted without a token")
	}
	if _, err := New(Config{Enabled: true, Token: "abc"}, logx.Nop(), eventbus.New()); err == nil {
		t.Fatal("enabled notifier accepted without a chat id")
	}
}
