package delivery

import (
	"strconv"

	"listingrelay/internal/database/models"
)

// Outcome is the result of delivering one listing to one target.
type Outcome struct {
	TargetID   int64
	MessageIDs []int // Produced messages, in media order
	Err        error
}

// OK reports whether the target received the listing.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Report collects the per-target outcomes of one fan-out, in target order.
type Report struct {
	ListingID int64
	Replay    bool
	Outcomes  []Outcome
}

// Delivered reports whether at least one target received the listing.
func (r Report) Delivered() bool {
	for _, o := range r.Outcomes {
		if o.OK() {
			return true
		}
	}
	return false
}

// Failed counts targets that did not receive the listing.
func (r Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}

// Record builds the delivery record of the successful outcomes.
func (r Report) Record() models.DeliveryRecord {
	record := make(models.DeliveryRecord)
	for _, o := range r.Outcomes {
		if o.OK() {
			record[models.TargetKey(o.TargetID)] = append(record[models.TargetKey(o.TargetID)], o.MessageIDs...)
		}
	}
	return record
}

func parseTargetKey(key string) (int64, error) {
	return strconv.ParseInt(key, 10, 64)
}
