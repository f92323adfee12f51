package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"listingrelay/internal/database/models"

	"github.com/mymmrac/telego"
)

// ContentKind classifies an inbound source event.
type ContentKind string

const (
	KindText    ContentKind = "text"
	KindPhoto   ContentKind = "photo"
	KindVideo   ContentKind = "video"
	KindUnknown ContentKind = "unknown"
)

// Submission is one inbound content event from a source chat.
type Submission struct {
	ChatID       int64
	MessageID    int
	MediaGroupID string
	Kind         ContentKind
	FileID       string // Photo or video reference; empty for text
	Caption      string // Caption or message text
	Entities     []models.TextEntity
	IDText       string // Text to extract the listing id from; falls back to Caption
}

// SubmissionFromMessage converts a Telegram message or channel post into a Submission.
func SubmissionFromMessage(msg telego.Message) Submission {
	sub := Submission{
		ChatID:       msg.Chat.ID,
		MessageID:    msg.MessageID,
		MediaGroupID: msg.MediaGroupID,
		Kind:         KindUnknown,
	}
	switch {
	case len(msg.Photo) > 0:
		// Largest size, same as the album helper the bot used before.
		photo := msg.Photo[0]
		for _, p := range msg.Photo {
			if p.FileSize > photo.FileSize || (p.FileSize == photo.FileSize && p.Width*p.Height > photo.Width*photo.Height) {
				photo = p
			}
		}
		sub.Kind = KindPhoto
		sub.FileID = photo.FileID
		sub.Caption, sub.Entities = msg.Caption, textEntities(msg.CaptionEntities)
	case msg.Video != nil:
		sub.Kind = KindVideo
		sub.FileID = msg.Video.FileID
		sub.Caption, sub.Entities = msg.Caption, textEntities(msg.CaptionEntities)
	case msg.Text != "":
		sub.Kind = KindText
		sub.Caption, sub.Entities = msg.Text, textEntities(msg.Entities)
	default:
		sub.Caption, sub.Entities = msg.Caption, textEntities(msg.CaptionEntities)
	}
	return sub
}

// textEntities keeps the formatting of a caption so it can be sent again
// verbatim, without a parse mode.
func textEntities(entities []telego.MessageEntity) []models.TextEntity {
	if len(entities) == 0 {
		return nil
	}
	out := make([]models.TextEntity, 0, len(entities))
	for _, e := range entities {
		te := models.TextEntity{
			Type:          e.Type,
			Offset:        e.Offset,
			Length:        e.Length,
			URL:           e.URL,
			Language:      e.Language,
			CustomEmojiID: e.CustomEmojiID,
		}
		if e.User != nil {
			te.UserID = e.User.ID
		}
		out = append(out, te)
	}
	return out
}

func (s Submission) mediaKind() (models.MediaKind, bool) {
	switch s.Kind {
	case KindPhoto:
		return models.MediaPhoto, true
	case KindVideo:
		return models.MediaVideo, true
	}
	return "", false
}

func (s Submission) idText() string {
	if s.IDText != "" {
		return s.IDText
	}
	return s.Caption
}

// listingIDPattern finds an "ID" token followed by optional separators and digits.
var listingIDPattern = regexp.MustCompile(`(?i)\bid[\s:#№=.\-–—]*(\d+)`)

// ExtractListingID returns the listing id of the first "ID" token in text.
// Leading zeros are ignored, so "ID: 007" yields 7. A digit run that does not
// fit in an int64 rejects the text instead of falling through to a later token.
func ExtractListingID(text string) (int64, bool) {
	match := listingIDPattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	digits := strings.TrimLeft(match[1], "0")
	if digits == "" {
		digits = "0"
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
