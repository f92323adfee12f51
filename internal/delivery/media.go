package delivery

import (
	"log"

	"listingrelay/internal/database/models"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// buildInputMedia converts the listing's media items into an album.
// The caption goes on the first item only, with the source formatting
// attached as entities. No parse mode is set, so the text is sent as is.
func buildInputMedia(listing *models.Listing) []telego.InputMedia {
	entities := captionEntities(listing.CaptionEntities)
	inputMedia := make([]telego.InputMedia, 0, len(listing.MediaItems))
	for _, item := range listing.MediaItems {
		first := len(inputMedia) == 0
		switch item.Kind {
		case models.MediaPhoto:
			mediaPhoto := tu.MediaPhoto(tu.FileFromID(item.FileID))
			if first && listing.Caption != "" {
				mediaPhoto.Caption = listing.Caption
				mediaPhoto.CaptionEntities = entities
			}
			inputMedia = append(inputMedia, mediaPhoto)
		case models.MediaVideo:
			mediaVideo := tu.MediaVideo(tu.FileFromID(item.FileID))
			if first && listing.Caption != "" {
				mediaVideo.Caption = listing.Caption
				mediaVideo.CaptionEntities = entities
			}
			inputMedia = append(inputMedia, mediaVideo)
		default:
			log.Printf("[Delivery Listing:%d] Unsupported media kind %q, skipping", listing.ListingID, item.Kind)
		}
	}
	return inputMedia
}

func captionEntities(stored []models.TextEntity) []telego.MessageEntity {
	if len(stored) == 0 {
		return nil
	}
	out := make([]telego.MessageEntity, 0, len(stored))
	for _, e := range stored {
		entity := telego.MessageEntity{
			Type:          e.Type,
			Offset:        e.Offset,
			Length:        e.Length,
			URL:           e.URL,
			Language:      e.Language,
			CustomEmojiID: e.CustomEmojiID,
		}
		if e.UserID != 0 {
			entity.User = &telego.User{ID: e.UserID}
		}
		out = append(out, entity)
	}
	return out
}
