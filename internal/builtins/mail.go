// ABOUTME: Mail pack: plain, HTML, and link-bearing sends through Gmail
// ABOUTME: Scoped to gmail.send; the dispatcher supplies the access token

package builtins

import (
	"context"
	"encoding/json"

	"github.com/errandhq/errand-gateway/internal/providers/gmail"
	"github.com/errandhq/errand-gateway/internal/tools"
)

func registerMailPack(registry *tools.Registry, client *gmail.Client) {
	registry.Register(&tools.Descriptor{
		Name:        "send_email",
		Description: "Send an email to a recipient",
		Provider:    googleProvider,
		Scope:       ScopeMailSend,
		Params: []tools.Param{
			{Name: "to", Type: tools.TypeString, Required: true},
			{Name: "subject", Type: tools.TypeString, Required: true},
			{Name: "body", Type: tools.TypeString, Required: true},
			{Name: "is_html", Type: tools.TypeBool, Required: false},
		},
		Handler: func(ctx context.Context, inv tools.Invocation) (json.RawMessage, error) {
			messageID, err := client.SendEmail(ctx, inv.AccessToken,
				stringParam(inv, "to"), stringParam(inv, "subject"),
				stringParam(inv, "body"), boolParam(inv, "is_html"))
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{"message_id": messageID})
		},
	})

	registry.Register(&tools.Descriptor{
		Name:        "send_email_with_link",
		Description: "Send an HTML email that highlights a link",
		Provider:    googleProvider,
		Scope:       ScopeMailSend,
		Params: []tools.Param{
			{Name: "to", Type: tools.TypeString, Required: true},
			{Name: "subject", Type: tools.TypeString, Required: true},
			{Name: "body", Type: tools.TypeString, Required: true},
			{Name: "link_text", Type: tools.TypeString, Required: true},
			{Name: "link_url", Type: tools.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, inv tools.Invocation) (json.RawMessage, error) {
			messageID, err := client.SendEmailWithLink(ctx, inv.AccessToken,
				stringParam(inv, "to"), stringParam(inv, "subject"),
				stringParam(inv, "body"), stringParam(inv, "link_text"),
				stringParam(inv, "link_url"))
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{"message_id": messageID})
		},
	})
}
