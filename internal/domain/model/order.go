package model

import "time"

// OrderStatus describes build lifecycle.
type OrderStatus string

const (
	OrderStatusQueued         OrderStatus = "queued"
	OrderStatusBuildStarted   OrderStatus = "build_started"
	OrderStatusBuilding       OrderStatus = "building"
	OrderStatusBuilt          OrderStatus = "built"
	OrderStatusSendingResult  OrderStatus = "sending_result"
	OrderStatusFinished       OrderStatus = "finished"
	OrderStatusFailed         OrderStatus = "failed"
	OrderStatusFailedNotified OrderStatus = "failed_notified"

	OrderStatusGetSourcesQueued       OrderStatus = "get_sources_queued"
	OrderStatusSourcesDownloaded      OrderStatus = "sources_downloaded"
	OrderStatusSendingSources         OrderStatus = "sending_sources"
	OrderStatusGettingSourcesFinished OrderStatus = "getting_sources_finished"
)

// OrderStatuses lists every known status.
var OrderStatuses = []OrderStatus{
	OrderStatusQueued,
	OrderStatusBuildStarted,
	OrderStatusBuilding,
	OrderStatusBuilt,
	OrderStatusSendingResult,
	OrderStatusFinished,
	OrderStatusFailed,
	OrderStatusFailedNotified,
	OrderStatusGetSourcesQueued,
	OrderStatusSourcesDownloaded,
	OrderStatusSendingSources,
	OrderStatusGettingSourcesFinished,
}

// InProgressStatuses are only reachable while a worker or the front-end holds the order.
var InProgressStatuses = []OrderStatus{
	OrderStatusBuildStarted,
	OrderStatusBuilding,
	OrderStatusSendingResult,
}

// LeasedStatuses are the statuses an order keeps while bound to a worker.
var LeasedStatuses = []OrderStatus{
	OrderStatusBuildStarted,
	OrderStatusBuilding,
}

// FinishedStatuses are terminal statuses whose orders await removal.
var FinishedStatuses = []OrderStatus{
	OrderStatusFinished,
	OrderStatusGettingSourcesFinished,
}

// Valid reports whether status belongs to the enumerated set.
func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// DefaultPriority is the highest priority tier.
const DefaultPriority = 1

// Order describes one build request.
type Order struct {
	ID            int64
	UserID        int64
	Status        OrderStatus
	Priority      int
	RecordCreated time.Time
	UpdatedAt     time.Time
	WorkerID      *int64
	BuildAttempts int
	SourcesOnly   bool
	UpdateTag     *string
	Config        BuildConfig
}

// Leased reports whether a worker currently holds the order.
func (o Order) Leased() bool {
	return o.WorkerID != nil
}

// StatusChange describes a compare-and-set status update.
type StatusChange struct {
	OrderID int64
	From    OrderStatus
	To      OrderStatus
	// WorkerID, when set, requires the order to be bound to this worker.
	WorkerID       *int64
	ReleaseWorker  bool
	CountAttempt   bool
	ResetQueueTime bool
}
