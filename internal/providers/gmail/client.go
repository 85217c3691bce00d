// ABOUTME: Gmail REST client that builds RFC 822 messages and sends them raw
// ABOUTME: Plain HTTP against an injected base URL, bearer-token authorized

package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// ErrSendFailed indicates the Gmail API rejected the send request.
var ErrSendFailed = errors.New("gmail send failed")

// Config contains construction options for the Client.
type Config struct {
	Sender     string // From address on outgoing mail
	BaseURL    string // default https://gmail.googleapis.com
	HTTPClient *http.Client
}

// Client sends mail through the Gmail API's users.messages.send endpoint.
type Client struct {
	sender  string
	baseURL string
	client  *http.Client
}

// NewClient creates a Gmail client sending as the given address.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://gmail.googleapis.com"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		sender:  cfg.Sender,
		baseURL: cfg.BaseURL,
		client:  cfg.HTTPClient,
	}
}

// SendEmail builds an RFC 822 message and sends it, returning the
// provider's message id. HTML bodies go out as multipart/alternative
// with a plain-text fallback.
func (c *Client) SendEmail(ctx context.Context, token, to, subject, body string, isHTML bool) (string, error) {
	var raw []byte
	var err error
	if isHTML {
		raw, err = buildHTMLMessage(c.sender, to, subject, body)
	} else {
		raw = buildPlainMessage(c.sender, to, subject, body)
	}
	if err != nil {
		return "", fmt.Errorf("building message: %w", err)
	}
	return c.sendRaw(ctx, token, raw)
}

// SendEmailWithLink sends an HTML message whose body ends with a
// prominent link, used for sharing spreadsheet and document URLs.
func (c *Client) SendEmailWithLink(ctx context.Context, token, to, subject, body, linkText, linkURL string) (string, error) {
	markup := fmt.Sprintf(
		"<html><body><p>%s</p><p><a href=%q>%s</a></p></body></html>",
		html.EscapeString(body), linkURL, html.EscapeString(linkText),
	)
	raw, err := buildHTMLMessage(c.sender, to, subject, markup)
	if err != nil {
		return "", fmt.Errorf("building message: %w", err)
	}
	return c.sendRaw(ctx, token, raw)
}

// sendRaw base64url-encodes an RFC 822 message and posts it.
func (c *Client) sendRaw(ctx context.Context, token string, raw []byte) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"raw": base64.URLEncoding.EncodeToString(raw),
	})
	if err != nil {
		return "", fmt.Errorf("encoding send request: %w", err)
	}

	url := c.baseURL + "/gmail/v1/users/me/messages/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading send response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrSendFailed, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding send response: %w", err)
	}
	return result.ID, nil
}

// buildPlainMessage assembles a single-part text/plain RFC 822 message.
func buildPlainMessage(from, to, subject, body string) []byte {
	var buf bytes.Buffer
	writeHeaders(&buf, from, to, subject)
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}

// buildHTMLMessage assembles a multipart/alternative message with a
// plain-text fallback derived by stripping tags naively; mail clients
// that render HTML ignore it.
func buildHTMLMessage(from, to, subject, htmlBody string) ([]byte, error) {
	var buf bytes.Buffer
	writeHeaders(&buf, from, to, subject)

	mw := multipart.NewWriter(&buf)
	buf.WriteString("Content-Type: multipart/alternative; boundary=" + mw.Boundary() + "\r\n")
	buf.WriteString("\r\n")

	plain, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=\"UTF-8\""},
	})
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(plain, stripTags(htmlBody)); err != nil {
		return nil, err
	}

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=\"UTF-8\""},
	})
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(htmlPart, htmlBody); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeHeaders(buf *bytes.Buffer, from, to, subject string) {
	fmt.Fprintf(buf, "From: %s\r\n", from)
	fmt.Fprintf(buf, "To: %s\r\n", to)
	fmt.Fprintf(buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
}

// stripTags drops anything between angle brackets. Good enough for the
// plain-text fallback of messages this client itself generates.
func stripTags(s string) string {
	var out strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			out.WriteRune(r)
		}
	}
	return strings.TrimSpace(out.String())
}
