package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAuditDispatch is the task type for fanning audit events out to
	// downstream consumers.
	TaskTypeAuditDispatch = "audit:dispatch"
)

// AuditDispatchPayload carries the audit event fields downstream consumers
// care about. The full event stays in Postgres; this is a notification.
type AuditDispatchPayload struct {
	EventID    string    `json:"event_id"`
	CompanyID  int64     `json:"company_id"`
	Type       string    `json:"type"`
	Entity     string    `json:"entity"`
	EntityID   string    `json:"entity_id"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewAuditDispatchTask constructs an Asynq task.
func NewAuditDispatchTask(payload AuditDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditDispatch, data), nil
}

// HandleAuditDispatchTask processes TaskTypeAuditDispatch tasks.
func HandleAuditDispatchTask(ctx context.Context, t *asynq.Task) error {
	var payload AuditDispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: webhook/email delivery lands here once consumers exist.
	fmt.Printf("[jobs] dispatch audit event %s type=%s entity=%s/%s\n",
		payload.EventID, payload.Type, payload.Entity, payload.EntityID)
	return nil
}
