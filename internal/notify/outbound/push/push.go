package push

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/pkg/instrument"
	"go.opentelemetry.io/otel/codes"
)

// Adapter delivers web push notifications through the push relay service,
// which holds the VAPID keys and speaks the Web Push protocol to browser
// vendors. An empty base URL means push is not configured.
type Adapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	ins     instrument.Instrumentation
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func New(cfg Config, ins instrument.Instrumentation) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Adapter{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		ins:     ins,
	}
}

func (a *Adapter) Configured() bool {
	return a.baseURL != ""
}

type sendRequest struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	LinkPath string `json:"link_path,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

func (a *Adapter) Send(ctx context.Context, target entity.DeliveryTarget, content entity.Content) entity.SendResult {
	ctx, span := a.ins.Tracer("notify.outbound.push").Start(ctx, "Send")
	defer span.End()

	if target.Push == nil {
		return entity.SendResult{Permanent: true, ErrorMessage: "no push subscription on delivery"}
	}

	payload, err := json.Marshal(sendRequest{
		Endpoint: target.Push.Endpoint,
		P256dh:   target.Push.P256dh,
		Auth:     target.Push.Auth,
		Title:    content.Title,
		Body:     content.Body,
		LinkPath: content.LinkPath,
	})
	if err != nil {
		return entity.SendResult{Permanent: true, ErrorMessage: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/send", bytes.NewReader(payload))
	if err != nil {
		return entity.SendResult{Permanent: true, ErrorMessage: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		// Network failure or timeout; the subscription may still be fine.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return entity.SendResult{ErrorMessage: err.Error()}
	}
	defer resp.Body.Close()

	var body sendResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return entity.SendResult{OK: true, ProviderMessageID: body.MessageID}

	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// The browser vendor reports the subscription as dead.
		return entity.SendResult{Permanent: true, ErrorMessage: statusMessage(resp.StatusCode, body.Error)}

	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return entity.SendResult{Permanent: true, ErrorMessage: statusMessage(resp.StatusCode, body.Error)}

	default: // 429, 5xx
		return entity.SendResult{ErrorMessage: statusMessage(resp.StatusCode, body.Error)}
	}
}

func statusMessage(code int, detail string) string {
	msg := "push relay returned " + http.StatusText(code)
	if detail != "" {
		msg += ": " + detail
	}
	return msg
}
