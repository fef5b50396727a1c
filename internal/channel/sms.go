package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// SMSConfig configures the HTTP SMS gateway driver.
type SMSConfig struct {
	GatewayURL    string        `envconfig:"GATEWAY_URL" json:"gateway_url"`
	APIToken      string        `envconfig:"API_TOKEN" json:"-"`
	Sender        string        `envconfig:"SENDER" json:"sender"`
	RatePerSecond float64       `envconfig:"RATE_PER_SECOND" default:"5" json:"rate_per_second"`
	Burst         int           `envconfig:"BURST" default:"5" json:"burst"`
	MaxRetries    int           `envconfig:"MAX_RETRIES" default:"2" json:"max_retries"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"10s" json:"timeout"`
}

// SMSDriver posts short messages to an HTTP gateway. Transient gateway errors
// are retried by go-retryablehttp; outbound throughput is capped by a token bucket.
type SMSDriver struct {
	config  SMSConfig
	client  *retryablehttp.Client
	limiter *rate.Limiter
}

type smsRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Text string `json:"text"`
	Ref  string `json:"reference,omitempty"`
}

type smsResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// NewSMSDriver creates an SMSDriver. logger may be nil.
func NewSMSDriver(config SMSConfig, logger *slog.Logger) *SMSDriver {
	client := retryablehttp.NewClient()
	client.RetryMax = config.MaxRetries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	if config.Timeout > 0 {
		client.HTTPClient.Timeout = config.Timeout
	}
	client.Logger = nil
	if logger != nil {
		client.Logger = logger
	}

	limit := rate.Inf
	if config.RatePerSecond > 0 {
		limit = rate.Limit(config.RatePerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	return &SMSDriver{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Name returns the channel name.
func (d *SMSDriver) Name() string { return SMS }

// Available reports whether a gateway URL is configured.
func (d *SMSDriver) Available() bool { return d.config.GatewayURL != "" }

// Send posts the rendered text to the gateway.
func (d *SMSDriver) Send(ctx context.Context, del *Delivery) (Result, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("waiting for sms rate limiter: %w", err)
	}

	body, err := json.Marshal(smsRequest{
		From: d.config.Sender,
		To:   del.Address,
		Text: d.text(del),
		Ref:  fmt.Sprintf("delivery-%d", del.Record.ID),
	})
	if err != nil {
		return Result{}, fmt.Errorf("encoding sms request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.config.GatewayURL, body)
	if err != nil {
		return Result{}, fmt.Errorf("building sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.config.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.config.APIToken)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("calling sms gateway: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Result{}, fmt.Errorf("reading sms gateway response: %w", err)
	}
	var out smsResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		msg := out.Message
		if msg == "" && out.ID != "" {
			msg = "gateway id " + out.ID
		}
		return Result{Code: CodeSuccess, Message: msg}, nil
	}

	msg := out.Error
	if msg == "" {
		msg = out.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return Result{Code: CodeFailure, Message: msg}, nil
}

func (d *SMSDriver) text(del *Delivery) string {
	if del.Template != nil {
		if content := del.Template.Content[SMS]; content != "" {
			return Render(content, del.Record.Data)
		}
	}
	if s, ok := del.Record.Data["text"].(string); ok && s != "" {
		return s
	}
	return del.Record.Subject()
}
