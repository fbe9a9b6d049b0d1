package integrations

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/charset"
)

func init() {
	imap.CharsetReader = charset.Reader
}

// GmailDispatcher implements the "gmail" integration. A connection with
// username and password (app password) is required; SMTP and IMAP hosts
// default to Gmail's but can be overridden for other providers.
type GmailDispatcher struct{}

// NewGmailDispatcher creates a new gmail dispatcher
func NewGmailDispatcher() *GmailDispatcher {
	return &GmailDispatcher{}
}

// Name returns the integration name used in step definitions
func (d *GmailDispatcher) Name() string {
	return "gmail"
}

// Dispatch executes a gmail action
func (d *GmailDispatcher) Dispatch(ctx context.Context, req Request) (map[string]interface{}, error) {
	creds, err := emailCredentials(req.Settings)
	if err != nil {
		return nil, err
	}

	switch req.Action {
	case "send_email":
		return d.sendEmail(creds, req)
	case "list_emails":
		return d.listEmails(creds, req)
	default:
		return nil, fmt.Errorf("%w: gmail.%s", ErrUnknownAction, req.Action)
	}
}

type emailCreds struct {
	smtpHost string
	smtpPort int
	imapHost string
	imapPort int
	username string
	password string
}

// emailCredentials reads connection settings, applying Gmail defaults
func emailCredentials(settings map[string]interface{}) (emailCreds, error) {
	if settings == nil {
		return emailCreds{}, fmt.Errorf("gmail requires a stored connection")
	}

	creds := emailCreds{
		smtpHost: "smtp.gmail.com",
		smtpPort: 587,
		imapHost: "imap.gmail.com",
		imapPort: 993,
	}

	if v, ok := settings["smtp_host"].(string); ok && v != "" {
		creds.smtpHost = v
	}
	if v, ok := toFloat(settings["smtp_port"]); ok && v > 0 {
		creds.smtpPort = int(v)
	}
	if v, ok := settings["imap_host"].(string); ok && v != "" {
		creds.imapHost = v
	}
	if v, ok := toFloat(settings["imap_port"]); ok && v > 0 {
		creds.imapPort = int(v)
	}
	creds.username, _ = settings["username"].(string)
	creds.password, _ = settings["password"].(string)

	if creds.username == "" || creds.password == "" {
		return emailCreds{}, fmt.Errorf("gmail connection is missing username or password")
	}

	return creds, nil
}

// sendEmail sends one message over SMTP with STARTTLS
func (d *GmailDispatcher) sendEmail(creds emailCreds, req Request) (map[string]interface{}, error) {
	to := stringList(req.Config["to"])
	if len(to) == 0 {
		return nil, fmt.Errorf("gmail.send_email requires a \"to\" recipient")
	}

	subject, _ := req.Config["subject"].(string)
	body, _ := req.Config["body"].(string)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", creds.username)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n%s", body)

	addr := fmt.Sprintf("%s:%d", creds.smtpHost, creds.smtpPort)
	auth := smtp.PlainAuth("", creds.username, creds.password, creds.smtpHost)
	if err := smtp.SendMail(addr, auth, creds.username, to, []byte(msg.String())); err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	return map[string]interface{}{
		"sent":       true,
		"recipients": to,
		"subject":    subject,
	}, nil
}

// listEmails fetches recent message envelopes over IMAP
func (d *GmailDispatcher) listEmails(creds emailCreds, req Request) (map[string]interface{}, error) {
	folder, _ := req.Config["folder"].(string)
	if folder == "" {
		folder = "INBOX"
	}

	limit := uint32(10)
	if v, ok := toFloat(req.Config["limit"]); ok && v > 0 {
		limit = uint32(v)
	}

	addr := fmt.Sprintf("%s:%d", creds.imapHost, creds.imapPort)
	imapClient, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(creds.username, creds.password); err != nil {
		return nil, fmt.Errorf("IMAP authentication failed: %w", err)
	}

	mbox, err := imapClient.Select(folder, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select folder %q: %w", folder, err)
	}

	if mbox.Messages == 0 {
		return map[string]interface{}{
			"folder": folder,
			"emails": []interface{}{},
		}, nil
	}

	from := uint32(1)
	if mbox.Messages > limit {
		from = mbox.Messages - limit + 1
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, mbox.Messages)

	messages := make(chan *imap.Message, limit)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqSet, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()

	var emails []interface{}
	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}

		var sender string
		if len(msg.Envelope.From) > 0 {
			sender = msg.Envelope.From[0].Address()
		}

		emails = append(emails, map[string]interface{}{
			"subject": msg.Envelope.Subject,
			"from":    sender,
			"date":    msg.Envelope.Date.Format(time.RFC3339),
		})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return map[string]interface{}{
		"folder": folder,
		"emails": emails,
	}, nil
}

// stringList coerces a config value into a list of strings, accepting
// a single string or an array
func stringList(v interface{}) []string {
	switch value := v.(type) {
	case string:
		if value == "" {
			return nil
		}
		return []string{value}
	case []string:
		return value
	case []interface{}:
		var out []string
		for _, item := range value {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
