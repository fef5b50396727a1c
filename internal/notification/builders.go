package notification

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/shaharia-lab/notifyd/internal/channel"
)

// Built-in builder ids.
const (
	BuilderTemplate     = "template"
	BuilderCertIssued   = "cert_issued"
	BuilderCertExpiring = "cert_expiring"
	BuilderTaskFailed   = "task_failed"
)

// ErrMissingField is wrapped by builders when required context is absent.
var ErrMissingField = errors.New("missing required field")

// ErrAttachmentRefused is wrapped by builders that will not attach a
// requested file.
var ErrAttachmentRefused = errors.New("attachment refused")

// BuilderOption configures the built-in builders.
type BuilderOption func(*builderOptions)

type builderOptions struct {
	attachmentDir string
}

// WithAttachmentDir sets the directory certificate files are attached from.
// Without it, requests for an attachment fail to build.
func WithAttachmentDir(dir string) BuilderOption {
	return func(o *builderOptions) { o.attachmentDir = dir }
}

// RegisterDefaultBuilders adds the built-in builders to r.
func RegisterDefaultBuilders(r *BuilderRegistry, opts ...BuilderOption) {
	var o builderOptions
	for _, opt := range opts {
		opt(&o)
	}
	r.Register(BuilderTemplate, func() Builder { return &TemplateBuilder{} })
	r.Register(BuilderCertIssued, func() Builder { return &CertIssuedBuilder{AttachmentDir: o.attachmentDir} })
	r.Register(BuilderCertExpiring, func() Builder { return &CertExpiringBuilder{Now: time.Now} })
	r.Register(BuilderTaskFailed, func() Builder { return &TaskFailedBuilder{} })
}

// TemplateBuilder copies the template's declared variables from the context.
// Every declared variable must be present.
type TemplateBuilder struct{}

// Build implements Builder.
func (TemplateBuilder) Build(_ context.Context, in BuildInput, _ Notifiable) (*Payload, error) {
	p := &Payload{Data: map[string]any{}}
	if in.Template != nil {
		for _, v := range in.Template.Variables {
			val, ok := in.Context[v]
			if !ok || val == nil {
				return nil, fmt.Errorf("variable %q: %w", v, ErrMissingField)
			}
			p.Data[v] = val
		}
	}
	if s := contextString(in.Context, "subject"); s != "" {
		p.Meta()["subject"] = s
	}
	return p, nil
}

// CertIssuedBuilder announces a freshly issued certificate. On mail, a
// "certificate_file" context entry names a file inside AttachmentDir to attach.
type CertIssuedBuilder struct {
	AttachmentDir string
}

// Build implements Builder.
func (b CertIssuedBuilder) Build(_ context.Context, in BuildInput, n Notifiable) (*Payload, error) {
	domain, err := requireString(in.Context, "domain")
	if err != nil {
		return nil, err
	}
	p := &Payload{Data: map[string]any{"domain": domain}}
	copyOptional(p.Data, in.Context, "serial", "expires_at", "download_url", "order_id")

	meta := p.Meta()
	meta["subject"] = fmt.Sprintf("Your certificate for %s has been issued", domain)
	if in.Channel == channel.SMS {
		p.Data["text"] = fmt.Sprintf("Your certificate for %s is ready.", domain)
	}
	if name := contextString(in.Context, "certificate_file"); name != "" && in.Channel == channel.Mail {
		path, err := b.attachment(name, in.Context, n)
		if err != nil {
			return nil, err
		}
		meta["attachments"] = []string{path}
	}
	return p, nil
}

// attachment resolves a certificate file name. Files only go to the
// recipient's own address and never leave AttachmentDir.
func (b CertIssuedBuilder) attachment(name string, data map[string]any, n Notifiable) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: certificate_file must be relative, got %q", ErrAttachmentRefused, name)
	}
	if override := contextString(data, "email"); override != "" && (n == nil || !strings.EqualFold(override, strings.TrimSpace(n.Email()))) {
		return "", fmt.Errorf("%w: certificates are only mailed to the recipient's own address", ErrAttachmentRefused)
	}
	path, err := channel.ResolveAttachment(b.AttachmentDir, name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAttachmentRefused, err)
	}
	return path, nil
}

// CertExpiringBuilder warns that a certificate is about to expire.
type CertExpiringBuilder struct {
	Now func() time.Time
}

// Build implements Builder.
func (b CertExpiringBuilder) Build(_ context.Context, in BuildInput, _ Notifiable) (*Payload, error) {
	domain, err := requireString(in.Context, "domain")
	if err != nil {
		return nil, err
	}
	raw, err := requireString(in.Context, "expires_at")
	if err != nil {
		return nil, err
	}
	expiresAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("expires_at %q is not RFC 3339: %w", raw, err)
	}

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	daysLeft := int(math.Ceil(expiresAt.Sub(now()).Hours() / 24))
	if daysLeft < 0 {
		return nil, fmt.Errorf("certificate for %s already expired at %s", domain, raw)
	}

	p := &Payload{Data: map[string]any{
		"domain":     domain,
		"expires_at": expiresAt.Format("2006-01-02"),
		"days_left":  daysLeft,
	}}
	copyOptional(p.Data, in.Context, "renew_url", "order_id")
	p.Meta()["subject"] = fmt.Sprintf("Your certificate for %s expires in %d day(s)", domain, daysLeft)
	if in.Channel == channel.SMS {
		p.Data["text"] = fmt.Sprintf("Certificate for %s expires in %d day(s).", domain, daysLeft)
	}
	return p, nil
}

// TaskFailedBuilder reports a background task failure. It only produces mail.
type TaskFailedBuilder struct{}

// Build implements Builder.
func (TaskFailedBuilder) Build(_ context.Context, in BuildInput, _ Notifiable) (*Payload, error) {
	task, err := requireString(in.Context, "task")
	if err != nil {
		return nil, err
	}
	p := &Payload{
		Data:     map[string]any{"task": task},
		Channels: []string{channel.Mail},
	}
	copyOptional(p.Data, in.Context, "error", "attempts", "task_id", "failed_at")
	p.Meta()["subject"] = fmt.Sprintf("Background task %s failed", task)
	return p, nil
}

func requireString(data map[string]any, key string) (string, error) {
	s := contextString(data, key)
	if s == "" {
		return "", fmt.Errorf("%q: %w", key, ErrMissingField)
	}
	return s, nil
}

func copyOptional(dst, src map[string]any, keys ...string) {
	for _, k := range keys {
		if v, ok := src[k]; ok && v != nil {
			dst[k] = v
		}
	}
}
