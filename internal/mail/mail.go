// Package mail renders and sends the per-tenant delivery digest.
package mail

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	gomail "github.com/wneessen/go-mail"

	"github.com/sells-group/jobpipe/internal/resilience"
)

const defaultPort = 465

// ErrNotConfigured is returned when no sender or password is set.
var ErrNotConfigured = eris.New("mail: sender or password not configured")

// Settings are the SMTP account used for one tenant.
type Settings struct {
	Sender   string
	Password string
	Host     string
	Port     int
}

// Configured reports whether the account can send.
func (s Settings) Configured() bool {
	return s.Sender != "" && s.Password != ""
}

// Endpoint returns the SMTP host and port. The host defaults to
// smtp.<sender domain> and the port to 465.
func (s Settings) Endpoint() (string, int) {
	host := s.Host
	if host == "" {
		if at := strings.LastIndex(s.Sender, "@"); at >= 0 {
			host = "smtp." + s.Sender[at+1:]
		}
	}
	port := s.Port
	if port == 0 {
		port = defaultPort
	}
	return host, port
}

// Attachment is a file sent with a message.
type Attachment struct {
	Name string
	Path string
}

// Message is a transport-neutral email.
type Message struct {
	From        string
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Transport sends messages. Success means the server accepted the message,
// not that it reached the inbox.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// SMTP sends through an SMTP server with go-mail. Port 587 uses STARTTLS;
// every other port uses implicit TLS.
type SMTP struct {
	settings Settings
	budget   resilience.Budget
}

// NewSMTP creates an SMTP transport.
func NewSMTP(settings Settings, budget resilience.Budget) *SMTP {
	return &SMTP{settings: settings, budget: budget}
}

// Send implements Transport.
func (t *SMTP) Send(ctx context.Context, msg Message) error {
	if !t.settings.Configured() {
		return resilience.Escalate(ErrNotConfigured, resilience.ScopeTenant)
	}

	m, err := buildMsg(msg)
	if err != nil {
		return resilience.Escalate(err, resilience.ScopeTenant)
	}
	client, err := t.client()
	if err != nil {
		return resilience.Escalate(err, resilience.ScopeTenant)
	}

	_, err = resilience.Invoke(ctx, resilience.Op{Name: "mail: send", Scope: resilience.ScopeTenant}, t.budget,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, classifySend(client.DialAndSendWithContext(ctx, m))
		})
	return err
}

func (t *SMTP) client() (*gomail.Client, error) {
	host, port := t.settings.Endpoint()
	opts := []gomail.Option{
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(t.settings.Sender),
		gomail.WithPassword(t.settings.Password),
	}
	if port == 587 {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithSSL())
	}
	opts = append(opts, gomail.WithPort(port))

	client, err := gomail.NewClient(host, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "mail: client for %s:%d", host, port)
	}
	return client, nil
}

// classifySend marks temporary SMTP failures as transient.
func classifySend(err error) error {
	if err == nil {
		return nil
	}
	var se *gomail.SendError
	if errors.As(err, &se) && se.IsTemp() {
		return resilience.NewTransientError(err, 0)
	}
	return eris.Wrap(err, "mail: send")
}

func buildMsg(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, eris.Wrapf(err, "mail: from %q", msg.From)
	}
	if err := m.To(msg.To); err != nil {
		return nil, eris.Wrapf(err, "mail: to %q", msg.To)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	}

	for _, a := range msg.Attachments {
		data, err := os.ReadFile(a.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "mail: read attachment %s", a.Path)
		}
		name := a.Name
		if name == "" {
			name = filepath.Base(a.Path)
		}
		if err := m.AttachReader(name, bytes.NewReader(data)); err != nil {
			return nil, eris.Wrapf(err, "mail: attach %s", name)
		}
	}
	return m, nil
}
