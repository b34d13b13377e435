package console

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishWithoutBusIsSilent(t *testing.T) {
	Use(nil)
	// Must not panic.
	Messagef(context.Background(), "into the void %d", 1)
}

func TestSubscribeReceivesTypedEvents(t *testing.T) {
	bus := New()
	var messages []string
	var commands []string
	bus.Subscribe(func(ctx context.Context, event any) {
		switch e := event.(type) {
		case Message:
			messages = append(messages, e.Text)
		case CommandStart:
			commands = append(commands, e.Name)
		}
	})
	Use(bus)
	defer Use(nil)

	ctx := context.Background()
	Messagef(ctx, "warning %d", 42)
	Publish(ctx, CommandStart{Name: "clean"})

	assert.Equal(t, []string{"warning 42"}, messages)
	assert.Equal(t, []string{"clean"}, commands)
}
