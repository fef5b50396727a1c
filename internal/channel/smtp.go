package channel

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// SMTPConfig holds connection parameters for the SMTP driver.
type SMTPConfig struct {
	Host       string `envconfig:"HOST" json:"host"`
	Port       int    `envconfig:"PORT" default:"587" json:"port"`
	Username   string `envconfig:"USERNAME" json:"username"`
	Password   string `envconfig:"PASSWORD" json:"-"`
	FromAddr   string `envconfig:"FROM" json:"from_address"`
	Encryption string `envconfig:"ENCRYPTION" default:"starttls" json:"encryption"` // "none", "starttls", "ssl_tls"

	// AttachmentDir is the only directory files may be attached from. Empty
	// disables attachments.
	AttachmentDir string `ignored:"true" json:"-"`
}

// SMTPDriver delivers the mail channel via SMTP using the go-mail library.
type SMTPDriver struct {
	config SMTPConfig
}

// NewSMTPDriver creates a new SMTPDriver with the given configuration.
func NewSMTPDriver(config SMTPConfig) *SMTPDriver {
	return &SMTPDriver{config: config}
}

// Name returns the channel name.
func (d *SMTPDriver) Name() string { return Mail }

// Available reports whether a server and sender address are configured.
func (d *SMTPDriver) Available() bool {
	return d.config.Host != "" && d.config.FromAddr != ""
}

// Send delivers the record to d.Address using the configured SMTP server.
func (d *SMTPDriver) Send(ctx context.Context, del *Delivery) (Result, error) {
	m := mail.NewMsg()
	if err := m.From(d.config.FromAddr); err != nil {
		return Result{}, fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(del.Address); err != nil {
		return Result{Code: CodeFailure, Message: fmt.Sprintf("invalid recipient address %q", del.Address)}, nil
	}

	subject := del.Record.Subject()
	m.Subject(subject)

	body := d.body(del)
	meta := del.Meta()
	if isHTML, _ := meta["html"].(bool); isHTML {
		m.SetBodyString(mail.TypeTextHTML, body)
	} else {
		// Plain-text fallback for clients that don't render HTML.
		m.SetBodyString(mail.TypeTextPlain, body)
		if html, err := renderMailHTML(del, subject, body); err == nil {
			m.AddAlternativeString(mail.TypeTextHTML, html)
		}
	}

	for _, name := range attachments(meta) {
		path, err := ResolveAttachment(d.config.AttachmentDir, name)
		if err != nil {
			return Result{}, fmt.Errorf("refusing attachment: %w", err)
		}
		m.AttachFile(path)
	}

	opts := []mail.Option{
		mail.WithPort(d.config.Port),
		mail.WithTLSPolicy(tlsPolicyFromEncryption(d.config.Encryption)),
	}
	if d.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(d.config.Username),
			mail.WithPassword(d.config.Password),
		)
	}

	c, err := mail.NewClient(d.config.Host, opts...)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create mail client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return Result{}, fmt.Errorf("sending mail: %w", err)
	}
	return Result{Code: CodeSuccess, Message: "accepted by " + d.config.Host}, nil
}

func (d *SMTPDriver) body(del *Delivery) string {
	if del.Template != nil {
		if content := del.Template.Content[Mail]; content != "" {
			return Render(content, del.Record.Data)
		}
	}
	return plainBody(del.Record.Data)
}

// attachments extracts file paths from the "_meta.attachments" directive.
// JSON round-trips turn []string into []any, so both are accepted.
func attachments(meta map[string]any) []string {
	switch v := meta["attachments"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// tlsPolicyFromEncryption converts the encryption string to a go-mail TLSPolicy.
func tlsPolicyFromEncryption(enc string) mail.TLSPolicy {
	switch enc {
	case "ssl_tls":
		return mail.TLSMandatory
	case "starttls":
		return mail.TLSOpportunistic
	default:
		return mail.NoTLS
	}
}
