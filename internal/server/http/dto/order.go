package dto

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

// OrderPayload is the flat order representation handed to build workers. Binary fields are
// base64 encoded.
type OrderPayload struct {
	ID int64 `json:"id"`
	model.BuildConfig
	SourcesOnly bool `json:"sources_only"`
}

// NewOrderPayload converts an order into its lease payload.
func NewOrderPayload(order *model.Order) *OrderPayload {
	if order == nil {
		return nil
	}
	return &OrderPayload{ID: order.ID, BuildConfig: order.Config, SourcesOnly: order.SourcesOnly}
}

// OrderSubmission is a decoded order body: the lease payload without id, optionally with an
// update tag.
type OrderSubmission struct {
	Config      model.BuildConfig
	SourcesOnly bool
	UpdateTag   *string
}

const (
	fieldSourcesOnly = "sources_only"
	fieldUpdateTag   = "update_tag"
)

// DecodeOrderSubmission decodes raw requiring exactly the payload fields.
func DecodeOrderSubmission(raw json.RawMessage) (*OrderSubmission, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("order must be an object: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("order must be an object")
	}

	required := append([]string{fieldSourcesOnly}, model.BuildConfigFields...)
	var missing []string
	for _, name := range required {
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing fields: %v", missing)
	}

	var extra []string
	for name := range fields {
		if name == fieldUpdateTag || slices.Contains(required, name) {
			continue
		}
		extra = append(extra, name)
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, fmt.Errorf("unexpected fields: %v", extra)
	}

	var body struct {
		model.BuildConfig
		SourcesOnly bool    `json:"sources_only"`
		UpdateTag   *string `json:"update_tag"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}

	return &OrderSubmission{Config: body.BuildConfig, SourcesOnly: body.SourcesOnly, UpdateTag: body.UpdateTag}, nil
}

// CreateOrderRequest is the body of POST /api/orders. Priority zero derives it from history.
type CreateOrderRequest struct {
	UserID   int64           `json:"user_id" binding:"required"`
	Priority int             `json:"priority"`
	Order    json.RawMessage `json:"order" binding:"required"`
}

// UpdateOrderRequest is the body of PUT /api/orders/:id.
type UpdateOrderRequest struct {
	Priority int             `json:"priority" binding:"required"`
	Order    json.RawMessage `json:"order" binding:"required"`
}

// EventRequest is the body of POST /api/orders/:id/events.
type EventRequest struct {
	Event string `json:"event"`
}

// OrderCreatedResponse answers order creation.
type OrderCreatedResponse struct {
	ID            int64  `json:"id"`
	Status        string `json:"status"`
	QueuePosition int    `json:"queue_position"`
}

// OrderResponse describes an order without its configuration.
type OrderResponse struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Status        string    `json:"status"`
	Priority      int       `json:"priority"`
	QueuePosition int       `json:"queue_position,omitempty"`
	WorkerID      *int64    `json:"worker_id"`
	BuildAttempts int       `json:"build_attempts"`
	SourcesOnly   bool      `json:"sources_only"`
	UpdateTag     *string   `json:"update_tag"`
	RecordCreated time.Time `json:"record_created"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewOrderResponse converts an order and its queue position.
func NewOrderResponse(order *model.Order, position int) OrderResponse {
	return OrderResponse{
		ID:            order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		Priority:      order.Priority,
		QueuePosition: position,
		WorkerID:      order.WorkerID,
		BuildAttempts: order.BuildAttempts,
		SourcesOnly:   order.SourcesOnly,
		UpdateTag:     order.UpdateTag,
		RecordCreated: order.RecordCreated,
		UpdatedAt:     order.UpdatedAt,
	}
}

// RemovedResponse answers an event that removed the order.
type RemovedResponse struct {
	ID      int64 `json:"id"`
	Removed bool  `json:"removed"`
}
