package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/support-workflow/internal/clock"
	"github.com/spec-kit/support-workflow/internal/events"
)

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, clk clock.Clock, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = clk.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
