package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// CurrentSchemaVersion is the listing document layout written by this build.
const CurrentSchemaVersion = 1

// ListingStatus is the lifecycle state of a listing.
type ListingStatus string

const (
	StatusActive  ListingStatus = "active"
	StatusSent    ListingStatus = "sent"
	StatusDeleted ListingStatus = "deleted"
	StatusError   ListingStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s ListingStatus) Valid() bool {
	switch s {
	case StatusActive, StatusSent, StatusDeleted, StatusError:
		return true
	}
	return false
}

// BoostStatus marks a listing for periodic re-delivery.
type BoostStatus string

const (
	BoostNone    BoostStatus = "unboosted"
	BoostEnabled BoostStatus = "boosted"
)

// MediaKind tags the variant of a MediaItem.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// MediaItem is one part of an album, in arrival order.
type MediaItem struct {
	Kind      MediaKind `bson:"kind"`
	FileID    string    `bson:"file_id"`
	MessageID int       `bson:"message_id,omitempty"` // Origin message carrying this part
}

// SourceRef identifies the original submission in its source chat.
type SourceRef struct {
	ChatID    int64 `bson:"chat_id"`
	MessageID int   `bson:"message_id"`
}

// TextEntity is one formatting span of a caption. Offsets and lengths are
// in UTF-16 code units, as Telegram reports them.
type TextEntity struct {
	Type          string `bson:"type"`
	Offset        int    `bson:"offset"`
	Length        int    `bson:"length"`
	URL           string `bson:"url,omitempty"`
	UserID        int64  `bson:"user_id,omitempty"` // text_mention only
	Language      string `bson:"language,omitempty"`
	CustomEmojiID string `bson:"custom_emoji_id,omitempty"`
}

// DeliveryRecord maps a target chat id (decimal string) to the message ids produced there.
type DeliveryRecord map[string][]int

// Merge appends other into r target by target. r must be non-nil.
func (r DeliveryRecord) Merge(other DeliveryRecord) {
	for target, ids := range other {
		r[target] = append(r[target], ids...)
	}
}

// TargetKey renders a target chat id the way it is stored in a DeliveryRecord.
func TargetKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// Listing is one submission tracked through its forwarding lifecycle.
type Listing struct {
	ListingID       int64          `bson:"listing_id"`
	Source          SourceRef      `bson:"source"`
	SourceKey       string         `bson:"source_key,omitempty"` // Set for non-grouped listings only
	GroupKey        string         `bson:"group_key,omitempty"`  // Set for grouped listings only
	MediaGroupID    string         `bson:"media_group_id,omitempty"`
	MediaItems      []MediaItem    `bson:"media_items,omitempty"`
	Caption         string         `bson:"caption,omitempty"`
	CaptionEntities []TextEntity   `bson:"caption_entities,omitempty"`
	Status          ListingStatus  `bson:"status"`
	Boost           BoostStatus    `bson:"boost"`
	DeliveryRecord  DeliveryRecord `bson:"delivery_record,omitempty"`
	LastError       string         `bson:"last_error,omitempty"`
	SchemaVersion   int            `bson:"schema_version"`
	Revision        int64          `bson:"revision"`
	CreatedAt       time.Time      `bson:"created_at"`
	UpdatedAt       time.Time      `bson:"updated_at"`
}

// SourceKeyFor builds the uniqueness key of a non-grouped submission.
func SourceKeyFor(chatID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

// GroupKeyFor builds the uniqueness key of a media group submission.
func GroupKeyFor(chatID int64, groupID string) string {
	return fmt.Sprintf("%d:%s", chatID, groupID)
}

// NewListing returns a fresh active, unboosted listing.
func NewListing(id int64, source SourceRef) *Listing {
	now := time.Now()
	return &Listing{
		ListingID:     id,
		Source:        source,
		Status:        StatusActive,
		Boost:         BoostNone,
		SchemaVersion: CurrentSchemaVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IDString is the textual external id, without leading zeros.
func (l *Listing) IDString() string {
	return strconv.FormatInt(l.ListingID, 10)
}

// IsBoosted reports whether the listing takes part in boost replays.
func (l *Listing) IsBoosted() bool {
	return l.Boost == BoostEnabled
}

// HasMedia reports whether the listing is delivered as a media batch.
func (l *Listing) HasMedia() bool {
	return len(l.MediaItems) > 0
}

// HasMediaMessage reports whether a part from the given origin message is already stored.
func (l *Listing) HasMediaMessage(messageID int) bool {
	for _, item := range l.MediaItems {
		if item.MessageID != 0 && item.MessageID == messageID {
			return true
		}
	}
	return false
}

// OriginMessageIDs lists every origin message that belongs to the listing.
func (l *Listing) OriginMessageIDs() []int {
	ids := []int{l.Source.MessageID}
	for _, item := range l.MediaItems {
		if item.MessageID != 0 && item.MessageID != l.Source.MessageID {
			ids = append(ids, item.MessageID)
		}
	}
	return ids
}

// MarkError moves the listing into the error state with a diagnostic.
func (l *Listing) MarkError(reason string) {
	l.Status = StatusError
	l.LastError = reason
}

// Clone returns a deep copy, so stored state is never aliased by callers.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	c := *l
	if l.MediaItems != nil {
		c.MediaItems = append([]MediaItem(nil), l.MediaItems...)
	}
	if l.CaptionEntities != nil {
		c.CaptionEntities = append([]TextEntity(nil), l.CaptionEntities...)
	}
	if l.DeliveryRecord != nil {
		c.DeliveryRecord = make(DeliveryRecord, len(l.DeliveryRecord))
		for k, v := range l.DeliveryRecord {
			c.DeliveryRecord[k] = append([]int(nil), v...)
		}
	}
	return &c
}

// Validate checks the document against the current schema before it is written.
func (l *Listing) Validate() error {
	if l.SchemaVersion != CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema version %d", l.SchemaVersion)
	}
	if !l.Status.Valid() {
		return fmt.Errorf("invalid status %q", l.Status)
	}
	if l.Boost != BoostNone && l.Boost != BoostEnabled {
		return fmt.Errorf("invalid boost status %q", l.Boost)
	}
	if l.SourceKey == "" && l.GroupKey == "" {
		return errors.New("listing has neither source key nor group key")
	}
	for i, item := range l.MediaItems {
		if item.Kind != MediaPhoto && item.Kind != MediaVideo {
			return fmt.Errorf("media item %d: invalid kind %q", i, item.Kind)
		}
		if item.FileID == "" {
			return fmt.Errorf("media item %d: empty file reference", i)
		}
	}
	if l.LastError != "" && l.Status != StatusError {
		return fmt.Errorf("last_error set on listing with status %q", l.Status)
	}
	return nil
}
