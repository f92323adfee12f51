package models

import "time"

// DeliveryLog stores one attempt to deliver a listing to one target.
type DeliveryLog struct {
	ListingID   int64     `bson:"listing_id"`
	TargetID    int64     `bson:"target_id"`
	MessageType string    `bson:"message_type"` // "media_group" or "forward"
	MessageIDs  []int     `bson:"message_ids,omitempty"`
	Replay      bool      `bson:"replay"` // Boost replay rather than a scheduled forward
	Error       string    `bson:"error,omitempty"`
	DeliveredAt time.Time `bson:"delivered_at"`
}
