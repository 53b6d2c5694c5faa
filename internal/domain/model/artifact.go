package model

import "time"

// ArtifactKind names a stored build result.
type ArtifactKind string

const (
	ArtifactBuild   ArtifactKind = "app.apk"
	ArtifactSources ArtifactKind = "sources.zip"
)

// ArtifactFor returns the artifact kind produced by order.
func ArtifactFor(o Order) ArtifactKind {
	if o.SourcesOnly {
		return ArtifactSources
	}
	return ArtifactBuild
}

// StatusEvent is published whenever an order changes status.
type StatusEvent struct {
	OrderID int64       `json:"order_id"`
	UserID  int64       `json:"user_id"`
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
	Removed bool        `json:"removed,omitempty"`
	At      time.Time   `json:"at"`
}
