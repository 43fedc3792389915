package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bangunpro/rab-approval/internal/application/port"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
	"go.uber.org/zap"
)

// Config holds webhook messenger configuration
type Config struct {
	URL     string
	Timeout time.Duration
}

// Messenger implements port.Messenger by POSTing each notification as a
// JSON payload to a configured endpoint. The receiving side decides how
// to reach the user (chat, email, push); this side only guarantees the
// payload left the building with a 2xx response.
type Messenger struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewMessenger creates a new webhook messenger
func NewMessenger(cfg Config, logger *zap.Logger) *Messenger {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Messenger{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type payload struct {
	NotificationID string `json:"notification_id"`
	InstanceID     string `json:"instance_id"`
	StepID         string `json:"step_id,omitempty"`
	Type           string `json:"type"`
	Subject        string `json:"subject"`
	Message        string `json:"message"`
	RecipientID    string `json:"recipient_id"`
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`
	CreatedAt      string `json:"created_at"`
}

// Send delivers one notification to the webhook endpoint
func (m *Messenger) Send(ctx context.Context, n *entity.ApprovalNotification, recipient *entity.User) error {
	if m.config.URL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	body, err := json.Marshal(payload{
		NotificationID: n.ID,
		InstanceID:     n.InstanceID,
		StepID:         n.StepID,
		Type:           n.Type,
		Subject:        n.Subject,
		Message:        n.Message,
		RecipientID:    recipient.ID,
		RecipientName:  recipient.Name,
		RecipientEmail: recipient.Email,
		CreatedAt:      n.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	m.logger.Debug("Notification delivered",
		zap.String("notification_id", n.ID),
		zap.String("recipient_id", recipient.ID))

	return nil
}

// Verify interface compliance
var _ port.Messenger = (*Messenger)(nil)
