// ABOUTME: Messaging pack: outbound Telegram sends and inbound update reads
// ABOUTME: Unscoped; the bot token authenticates the collaborator directly

package builtins

import (
	"context"
	"encoding/json"
	"time"

	"github.com/errandhq/errand-gateway/internal/providers/telegram"
	"github.com/errandhq/errand-gateway/internal/relay"
	"github.com/errandhq/errand-gateway/internal/tools"
)

func registerMessagingPack(registry *tools.Registry, client *telegram.Client, events *relay.Relay) {
	registry.Register(&tools.Descriptor{
		Name:        "send_message",
		Description: "Send a text message to a Telegram chat",
		Params: []tools.Param{
			{Name: "chat_id", Type: tools.TypeInt, Required: true},
			{Name: "text", Type: tools.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, inv tools.Invocation) (json.RawMessage, error) {
			messageID, err := client.SendMessage(ctx, intParam(inv, "chat_id", 0), stringParam(inv, "text"))
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"message_id": messageID})
		},
	})

	registry.Register(&tools.Descriptor{
		Name:        "get_updates",
		Description: "Read recent inbound messages for this conversation",
		Params: []tools.Param{
			{Name: "limit", Type: tools.TypeInt, Required: false},
		},
		Handler: func(ctx context.Context, inv tools.Invocation) (json.RawMessage, error) {
			limit := int(intParam(inv, "limit", 10))
			recent := events.Recent(telegram.Provider, inv.SessionID, limit)

			type entry struct {
				Seq     int64           `json:"seq"`
				At      string          `json:"at"`
				Payload json.RawMessage `json:"payload"`
			}
			out := make([]entry, len(recent))
			for i, event := range recent {
				out[i] = entry{
					Seq:     event.Seq,
					At:      event.At.Format(time.RFC3339),
					Payload: event.Payload,
				}
			}
			return json.Marshal(map[string]any{"updates": out})
		},
	})
}
