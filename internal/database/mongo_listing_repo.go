package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"listingrelay/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const listingCollectionName = "listings"

// MongoListingRepository implements ListingRepository for MongoDB.
type MongoListingRepository struct {
	collection *mongo.Collection
}

// NewMongoListingRepository creates a new MongoDB listing repository.
func NewMongoListingRepository(db *mongo.Database) *MongoListingRepository {
	return &MongoListingRepository{
		collection: db.Collection(listingCollectionName),
	}
}

// EnsureIndexes creates the uniqueness and lookup indexes the repository relies on.
// Submission keys use partial indexes so grouped and non-grouped listings do not collide.
func (r *MongoListingRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "listing_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_listing_id"),
		},
		{
			Keys: bson.D{{Key: "source_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_source_key").
				SetPartialFilterExpression(bson.M{"source_key": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "group_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_group_key").
				SetPartialFilterExpression(bson.M{"group_key": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "source.chat_id", Value: 1}, {Key: "listing_id", Value: 1}},
			Options: options.Index().SetName("status_source_id"),
		},
		{
			Keys:    bson.D{{Key: "boost", Value: 1}},
			Options: options.Index().SetName("boost"),
		},
	}
	names, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create listing indexes: %w", err)
	}
	log.Printf("Listing indexes ensured: %v", names)
	return nil
}

// CreateListing inserts a new listing document.
func (r *MongoListingRepository) CreateListing(ctx context.Context, listing *models.Listing) error {
	if err := listing.Validate(); err != nil {
		return fmt.Errorf("invalid listing %d: %w", listing.ListingID, err)
	}
	listing.Revision = 1
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = time.Now()
	}
	listing.UpdatedAt = listing.CreatedAt

	_, err := r.collection.InsertOne(ctx, listing)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateListing
		}
		return fmt.Errorf("failed to insert listing %d: %w", listing.ListingID, err)
	}
	return nil
}

// GetByID retrieves a listing by its external id.
func (r *MongoListingRepository) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	return r.findOne(ctx, bson.M{"listing_id": id}, fmt.Sprintf("id %d", id))
}

// FindBySource retrieves the non-grouped listing of an origin message.
func (r *MongoListingRepository) FindBySource(ctx context.Context, chatID int64, messageID int) (*models.Listing, error) {
	key := models.SourceKeyFor(chatID, messageID)
	return r.findOne(ctx, bson.M{"source_key": key}, "source "+key)
}

// FindByMediaGroup retrieves the grouped listing of a media group.
func (r *MongoListingRepository) FindByMediaGroup(ctx context.Context, chatID int64, groupID string) (*models.Listing, error) {
	key := models.GroupKeyFor(chatID, groupID)
	return r.findOne(ctx, bson.M{"group_key": key}, "group "+key)
}

func (r *MongoListingRepository) findOne(ctx context.Context, filter bson.M, what string) (*models.Listing, error) {
	var listing models.Listing
	err := r.collection.FindOne(ctx, filter).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to find listing by %s: %w", what, err)
	}
	return &listing, nil
}

// UpdateListing replaces the document only if its revision is unchanged.
func (r *MongoListingRepository) UpdateListing(ctx context.Context, listing *models.Listing) error {
	if err := listing.Validate(); err != nil {
		return fmt.Errorf("invalid listing %d: %w", listing.ListingID, err)
	}
	expected := listing.Revision
	next := *listing
	next.Revision = expected + 1
	next.UpdatedAt = time.Now()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"listing_id": listing.ListingID, "revision": expected}, &next)
	if err != nil {
		return fmt.Errorf("failed to update listing %d: %w", listing.ListingID, err)
	}
	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"listing_id": listing.ListingID})
		if err != nil {
			return fmt.Errorf("failed to check listing %d after missed update: %w", listing.ListingID, err)
		}
		if count == 0 {
			return ErrListingNotFound
		}
		return ErrRevisionConflict
	}
	listing.Revision = next.Revision
	listing.UpdatedAt = next.UpdatedAt
	return nil
}

// activeFilter selects active listings from the given sources. It reports
// false for an empty source list, which matches nothing.
func activeFilter(sourceChatIDs []int64) (bson.M, bool) {
	if len(sourceChatIDs) == 0 {
		return nil, false
	}
	return bson.M{
		"status":         models.StatusActive,
		"source.chat_id": bson.M{"$in": sourceChatIDs},
	}, true
}

// FindActive returns active listings from the given sources, numeric id ascending.
func (r *MongoListingRepository) FindActive(ctx context.Context, sourceChatIDs []int64) ([]*models.Listing, error) {
	filter, ok := activeFilter(sourceChatIDs)
	if !ok {
		return nil, nil
	}
	return r.findMany(ctx, filter, "active")
}

// CountActive counts active listings from the given sources.
func (r *MongoListingRepository) CountActive(ctx context.Context, sourceChatIDs []int64) (int64, error) {
	filter, ok := activeFilter(sourceChatIDs)
	if !ok {
		return 0, nil
	}
	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count active listings: %w", err)
	}
	return count, nil
}

// FindBoosted returns boosted listings that are not deleted.
func (r *MongoListingRepository) FindBoosted(ctx context.Context) ([]*models.Listing, error) {
	filter := bson.M{
		"boost":  models.BoostEnabled,
		"status": bson.M{"$ne": models.StatusDeleted},
	}
	return r.findMany(ctx, filter, "boosted")
}

func (r *MongoListingRepository) findMany(ctx context.Context, filter bson.M, what string) ([]*models.Listing, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "listing_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s listings: %w", what, err)
	}
	defer cursor.Close(ctx)

	var listings []*models.Listing
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode %s listings: %w", what, err)
	}
	return listings, nil
}

// TransitionAll moves every listing in one status to another.
func (r *MongoListingRepository) TransitionAll(ctx context.Context, from, to models.ListingStatus) (int64, error) {
	update := bson.M{
		"$set":   bson.M{"status": to, "updated_at": time.Now()},
		"$unset": bson.M{"last_error": ""},
		"$inc":   bson.M{"revision": 1},
	}
	result, err := r.collection.UpdateMany(ctx, bson.M{"status": from}, update)
	if err != nil {
		return 0, fmt.Errorf("failed to move %s listings to %s: %w", from, to, err)
	}
	return result.ModifiedCount, nil
}

// CountByStatus aggregates listing counts per status plus the boosted count.
func (r *MongoListingRepository) CountByStatus(ctx context.Context) (map[models.ListingStatus]int64, int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to aggregate listing counts: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.ListingStatus `bson:"_id"`
		Count  int64                `bson:"count"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, 0, fmt.Errorf("failed to decode listing counts: %w", err)
	}
	counts := make(map[models.ListingStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	boosted, err := r.collection.CountDocuments(ctx, bson.M{"boost": models.BoostEnabled})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count boosted listings: %w", err)
	}
	return counts, boosted, nil
}
