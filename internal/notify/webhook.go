package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
	"github.com/tbourn/go-rescue-dispatch/internal/services"
)

// ErrCircuitOpen is returned while the bridge circuit is open and calls are
// rejected without reaching the network.
var ErrCircuitOpen = errors.New("chat bridge circuit is open")

// Webhook command names, sent in the "command" field of every payload.
const (
	CommandAnnounceCase       = "announce_case"
	CommandOpenThread         = "open_thread"
	CommandUpdateAnnouncement = "update_announcement"
	CommandNotifyThread       = "notify_thread"
	CommandArchiveThread      = "archive_thread"
)

// WebhookConfig configures a WebhookNotifier.
type WebhookConfig struct {
	// URL of the chat bridge endpoint. Required.
	URL string
	// ChannelID is the channel announcements are posted to.
	ChannelID string
	// ResponderRoleID is mentioned in new announcements.
	ResponderRoleID string

	// Timeout bounds each HTTP call. Default: 5s.
	Timeout time.Duration
	// RPS and Burst limit outbound calls. RPS <= 0 disables limiting.
	RPS   float64
	Burst int

	// MaxFailures is the number of consecutive failures that opens the
	// circuit. Default: 5.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before probing.
	// Default: 30s.
	OpenTimeout time.Duration
}

// WebhookPayload is the JSON body posted to the bridge.
type WebhookPayload struct {
	Command            string        `json:"command"`
	ChannelID          string        `json:"channel_id,omitempty"`
	ResponderRoleID    string        `json:"responder_role_id,omitempty"`
	Case               domain.Case   `json:"case"`
	Presentation       *Presentation `json:"presentation,omitempty"`
	ThreadName         string        `json:"thread_name,omitempty"`
	AutoArchiveMinutes int           `json:"auto_archive_minutes,omitempty"`
	Message            string        `json:"message,omitempty"`
}

type webhookReply struct {
	Ref string `json:"ref"`
}

// StatusError is a non-2xx reply from the bridge.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("chat bridge returned %d", e.Code)
	}
	return fmt.Sprintf("chat bridge returned %d: %s", e.Code, e.Body)
}

// WebhookNotifier delivers notifier commands to an HTTP chat bridge. Calls
// are rate limited and go through a circuit breaker. 4xx replies are reported
// to the caller but do not count against the circuit.
type WebhookNotifier struct {
	cfg     WebhookConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

var _ services.Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier validates cfg and builds a notifier. A nil client uses a
// fresh http.Client with cfg.Timeout.
func NewWebhookNotifier(cfg WebhookConfig, client *http.Client) (*WebhookNotifier, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	var lim *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	maxFailures := cfg.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "chat-bridge",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return err == nil
		},
	})

	return &WebhookNotifier{cfg: cfg, client: client, limiter: lim, breaker: cb}, nil
}

// State reports the circuit state ("closed", "open", "half-open").
func (w *WebhookNotifier) State() string {
	return w.breaker.State().String()
}

func (w *WebhookNotifier) AnnounceCase(ctx context.Context, c domain.Case, _ domain.RequestForm) (string, error) {
	p := Present(c, domain.RenderState{}, w.cfg.ResponderRoleID)
	return w.send(ctx, WebhookPayload{
		Command:         CommandAnnounceCase,
		ChannelID:       w.cfg.ChannelID,
		ResponderRoleID: w.cfg.ResponderRoleID,
		Case:            c,
		Presentation:    &p,
	})
}

func (w *WebhookNotifier) OpenThread(ctx context.Context, c domain.Case) (string, error) {
	return w.send(ctx, WebhookPayload{
		Command:            CommandOpenThread,
		ChannelID:          w.cfg.ChannelID,
		Case:               c,
		ThreadName:         ThreadName(c),
		AutoArchiveMinutes: ThreadAutoArchiveMinutes,
	})
}

func (w *WebhookNotifier) UpdateAnnouncement(ctx context.Context, c domain.Case, state domain.RenderState) error {
	p := Present(c, state, w.cfg.ResponderRoleID)
	_, err := w.send(ctx, WebhookPayload{
		Command:      CommandUpdateAnnouncement,
		ChannelID:    w.cfg.ChannelID,
		Case:         c,
		Presentation: &p,
	})
	return err
}

func (w *WebhookNotifier) NotifyThread(ctx context.Context, c domain.Case, message string) error {
	_, err := w.send(ctx, WebhookPayload{
		Command: CommandNotifyThread,
		Case:    c,
		Message: message,
	})
	return err
}

func (w *WebhookNotifier) ArchiveThread(ctx context.Context, c domain.Case) error {
	_, err := w.send(ctx, WebhookPayload{
		Command: CommandArchiveThread,
		Case:    c,
		Message: "Case closed",
	})
	return err
}

// send posts payload and returns the "ref" field of the reply, if any.
func (w *WebhookNotifier) send(ctx context.Context, payload WebhookPayload) (string, error) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%s: rate limit: %w", payload.Command, err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: encode: %w", payload.Command, err)
	}

	res, err := w.breaker.Execute(func() (interface{}, error) {
		return w.post(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%s: %w", payload.Command, ErrCircuitOpen)
		}
		return "", fmt.Errorf("%s: %w", payload.Command, err)
	}
	return res.(string), nil
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return "", nil
	}
	var reply webhookReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("decode reply: %w", err)
	}
	return reply.Ref, nil
}
