package service

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/Strob0t/Courier/internal/domain/delivery"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/messagequeue"
)

// HistoryType is the CloudEvent type of every outcome event.
const HistoryType = "com.redhat.console.notifications.history"

// OutcomeEvent is the CloudEvent sent back to the engine.
type OutcomeEvent struct {
	ID              string      `json:"id"`
	Type            string      `json:"type"`
	SpecVersion     string      `json:"specversion"`
	Source          string      `json:"source"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            OutcomeData `json:"data"`
}

// OutcomeData is the outcome payload.
type OutcomeData struct {
	Successful bool           `json:"successful"`
	Duration   int64          `json:"duration"`
	Details    map[string]any `json:"details"`
	Error      *FailureInfo   `json:"error,omitempty"`
}

// FailureInfo describes a failed delivery.
type FailureInfo struct {
	ErrorType        string `json:"error_type"`
	HTTPStatusCode   int    `json:"http_status_code,omitempty"`
	DeliveryAttempts int    `json:"delivery_attempts"`
}

// OutcomeReporter publishes outcome events.
type OutcomeReporter struct {
	pub       messagequeue.Publisher
	subject   string
	connector string
	now       func() time.Time
}

// NewOutcomeReporter creates a reporter publishing to subject on behalf of
// the connector named connectorName.
func NewOutcomeReporter(pub messagequeue.Publisher, subject, connectorName string) *OutcomeReporter {
	return &OutcomeReporter{pub: pub, subject: subject, connector: connectorName, now: time.Now}
}

// Build assembles the outcome event of env.
func (r *OutcomeReporter) Build(env *envelope.Envelope, o delivery.Outcome) OutcomeEvent {
	details := make(map[string]any, len(o.Details)+3)
	maps.Copy(details, o.Details)
	details["type"] = env.Type
	details["target"] = o.TargetURL
	details["outcome"] = o.Message

	data := OutcomeData{
		Successful: o.Successful,
		Duration:   o.DurationMs,
		Details:    details,
	}
	if !o.Successful {
		info := &FailureInfo{ErrorType: string(o.ErrorKind), DeliveryAttempts: o.Attempts}
		if o.ErrorKind.IsHTTP() {
			info.HTTPStatusCode = o.StatusCode
		}
		data.Error = info
	}

	return OutcomeEvent{
		ID:              env.ID,
		Type:            HistoryType,
		SpecVersion:     "1.0",
		Source:          r.connector,
		Time:            r.now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}
}

// Report publishes the outcome of env.
func (r *OutcomeReporter) Report(ctx context.Context, env *envelope.Envelope, o delivery.Outcome) error {
	body, err := json.Marshal(r.Build(env, o))
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	header := map[string]string{
		messagequeue.HeaderConnector: r.connector,
		messagequeue.HeaderHistoryID: env.ID,
	}
	if err := r.pub.Publish(ctx, r.subject, body, header); err != nil {
		return fmt.Errorf("report outcome %s: %w", env.ID, err)
	}
	return nil
}
