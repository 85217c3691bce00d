// ABOUTME: Tests for Gmail message assembly and raw send
// ABOUTME: Decodes the uploaded RFC 822 payload against a stub API server

package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureServer records the decoded raw message of each send.
type captureServer struct {
	status   int
	messages []string
	tokens   []string
}

func (c *captureServer) start(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/gmail/v1/users/me/messages/send", r.URL.Path)
		c.tokens = append(c.tokens, r.Header.Get("Authorization"))

		var body struct {
			Raw string `json:"raw"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		raw, err := base64.URLEncoding.DecodeString(body.Raw)
		require.NoError(t, err)
		c.messages = append(c.messages, string(raw))

		if c.status != 0 && c.status != http.StatusOK {
			w.WriteHeader(c.status)
			fmt.Fprint(w, `{"error":{"message":"insufficient scope"}}`)
			return
		}
		fmt.Fprint(w, `{"id":"msg-123"}`)
	}))
	t.Cleanup(srv.Close)
	return NewClient(Config{Sender: "agent@example.com", BaseURL: srv.URL})
}

func TestSendEmailPlain(t *testing.T) {
	srv := &captureServer{}
	client := srv.start(t)

	id, err := client.SendEmail(context.Background(), "tok", "rcpt@example.com", "Hi", "Test body", false)
	require.NoError(t, err)
	assert.Equal(t, "msg-123", id)

	require.Len(t, srv.messages, 1)
	msg := srv.messages[0]
	assert.Contains(t, msg, "From: agent@example.com\r\n")
	assert.Contains(t, msg, "To: rcpt@example.com\r\n")
	assert.Contains(t, msg, "Subject: Hi\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain")
	assert.Contains(t, msg, "Test body")
	assert.Equal(t, "Bearer tok", srv.tokens[0])
}

func TestSendEmailHTMLIsMultipart(t *testing.T) {
	srv := &captureServer{}
	client := srv.start(t)

	_, err := client.SendEmail(context.Background(), "tok", "rcpt@example.com", "Hi",
		"<p>Hello <b>there</b></p>", true)
	require.NoError(t, err)

	msg := srv.messages[0]
	assert.Contains(t, msg, "Content-Type: multipart/alternative; boundary=")
	assert.Contains(t, msg, "text/plain")
	assert.Contains(t, msg, "text/html")
	assert.Contains(t, msg, "<p>Hello <b>there</b></p>")
	// The plain part carries the tag-stripped fallback.
	assert.Contains(t, msg, "Hello there")
}

func TestSendEmailWithLink(t *testing.T) {
	srv := &captureServer{}
	client := srv.start(t)

	_, err := client.SendEmailWithLink(context.Background(), "tok", "rcpt@example.com",
		"Your spreadsheet", "Budget & plans ready", "Open it", "https://sheets.example/d/abc")
	require.NoError(t, err)

	msg := srv.messages[0]
	assert.Contains(t, msg, `<a href="https://sheets.example/d/abc">Open it</a>`)
	// Body text is escaped into the HTML part.
	assert.Contains(t, msg, "Budget &amp; plans ready")
}

func TestSendEmailAPIFailure(t *testing.T) {
	srv := &captureServer{status: http.StatusForbidden}
	client := srv.start(t)

	_, err := client.SendEmail(context.Background(), "tok", "rcpt@example.com", "Hi", "body", false)
	require.ErrorIs(t, err, ErrSendFailed)
	assert.Contains(t, err.Error(), "403")
}
