package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/leaseline/export-engine/internal/domain"
	"github.com/leaseline/export-engine/internal/engine"
)

// Deliverer performs the HTTP transport call for one export event. It never
// touches the store: the caller owns claim and outcome bookkeeping; the
// deliverer only reports how the transport call ended.
type Deliverer struct {
	httpClient *http.Client
	secret     string
	logger     *slog.Logger
}

// NewDeliverer creates a deliverer whose transport calls are bounded by
// timeout. The context passed to Deliver bounds each call as well; the client
// timeout is a backstop.
func NewDeliverer(timeout time.Duration, secret string, logger *slog.Logger) *Deliverer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Deliverer{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		secret: secret,
		logger: logger,
	}
}

// envelope is the JSON body delivered to the target: event metadata plus the
// producer payload.
type envelope struct {
	EventID   string              `json:"event_id"`
	OrgID     string              `json:"org_id"`
	LeadID    *string             `json:"lead_id,omitempty"`
	Mode      domain.DeliveryMode `json:"mode"`
	CreatedAt time.Time           `json:"created_at"`
	Payload   json.RawMessage     `json:"payload"`
}

// Deliver POSTs the event envelope to its target URL, signing the body with
// HMAC-SHA256 when a secret is configured. attempt is the 1-based number of
// this attempt, exposed to the target in a header. The returned Result feeds
// the classifier; Deliver itself never decides retry behavior.
func (d *Deliverer) Deliver(ctx context.Context, ev domain.ExportEvent, attempt int) engine.Result {
	body, err := json.Marshal(envelope{
		EventID:   ev.EventID,
		OrgID:     ev.OrgID,
		LeadID:    ev.LeadID,
		Mode:      ev.Mode,
		CreatedAt: ev.CreatedAt,
		Payload:   ev.Payload,
	})
	if err != nil {
		return engine.Result{Err: fmt.Errorf("marshaling envelope: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ev.TargetURL, bytes.NewReader(body))
	if err != nil {
		return engine.Result{Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Export-ID", ev.EventID)
	req.Header.Set("X-Export-Org", ev.OrgID)
	req.Header.Set("X-Export-Mode", string(ev.Mode))
	req.Header.Set("X-Export-Attempt", fmt.Sprintf("%d", attempt))
	if d.secret != "" {
		req.Header.Set("X-Export-Signature", computeHMAC(body, d.secret))
	}

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Warn("delivery transport error",
			"event_id", ev.EventID,
			"host", ev.TargetURLHost,
			"attempt", attempt,
			"error", err,
		)
		return engine.Result{Err: err}
	}
	defer resp.Body.Close()

	// Drain a bounded slice of the body so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	d.logger.Debug("delivery response",
		"event_id", ev.EventID,
		"host", ev.TargetURLHost,
		"attempt", attempt,
		"status_code", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return engine.Result{StatusCode: resp.StatusCode}
}

// computeHMAC generates an HMAC-SHA256 signature for the payload.
func computeHMAC(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
