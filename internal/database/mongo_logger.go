package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"listingrelay/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	userActionsCollection  = "user_actions"
	deliveryLogsCollection = "delivery_logs"
	operatorsCollection    = "operators"
)

// MongoLogger implements the audit interfaces using MongoDB.
// It records admin actions, delivery attempts and operator activity.
type MongoLogger struct {
	db *mongo.Database
}

// NewMongoLogger creates and returns a new MongoLogger instance.
// It requires a connected MongoDB database instance.
func NewMongoLogger(db *mongo.Database) *MongoLogger {
	return &MongoLogger{db: db}
}

// LogUserAction writes an admin action entry to the database.
func (m *MongoLogger) LogUserAction(userID int64, action string, details interface{}) error {
	collection := m.db.Collection(userActionsCollection)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := collection.InsertOne(ctx, bson.M{
		"user_id": userID,
		"action":  action,
		"details": details,
		"time":    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to insert user action log for user %d: %w", userID, err)
	}
	return nil
}

// LogDelivery writes one delivery attempt to the database.
func (m *MongoLogger) LogDelivery(entry models.DeliveryLog) error {
	collection := m.db.Collection(deliveryLogsCollection)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if entry.DeliveredAt.IsZero() {
		entry.DeliveredAt = time.Now()
	}
	_, err := collection.InsertOne(ctx, entry)
	if err != nil {
		wrappedErr := fmt.Errorf("failed to insert delivery log into collection '%s': %w", deliveryLogsCollection, err)
		log.Printf("%v", wrappedErr)
		return wrappedErr
	}
	return nil
}

// UpdateOperator upserts the operator record and bumps its command counter.
func (m *MongoLogger) UpdateOperator(ctx context.Context, userID int64, username, firstName, lastName string, isAdmin bool, command string) error {
	collection := m.db.Collection(operatorsCollection)

	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"username":     username,
			"first_name":   firstName,
			"last_name":    lastName,
			"is_admin":     isAdmin,
			"last_seen":    now,
			"last_command": command,
		},
		"$inc": bson.M{
			"command_count": 1,
		},
		"$setOnInsert": bson.M{
			"first_seen": now,
			"user_id":    userID,
		},
	}

	_, err := collection.UpdateOne(ctx, bson.M{"user_id": userID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to update operator %d: %w", userID, err)
	}
	return nil
}

// LogOnlyLogger satisfies the audit interfaces by writing to the process log.
// It is used with the memory storage driver.
type LogOnlyLogger struct{}

// LogUserAction implements UserActionLogger.
func (LogOnlyLogger) LogUserAction(userID int64, action string, details interface{}) error {
	log.Printf("[Audit User:%d] %s %v", userID, action, details)
	return nil
}

// LogDelivery implements DeliveryLogger.
func (LogOnlyLogger) LogDelivery(entry models.DeliveryLog) error {
	if entry.Error != "" {
		log.Printf("[Audit Listing:%d Target:%d] %s failed: %s", entry.ListingID, entry.TargetID, entry.MessageType, entry.Error)
		return nil
	}
	log.Printf("[Audit Listing:%d Target:%d] %s delivered %v (replay=%t)", entry.ListingID, entry.TargetID, entry.MessageType, entry.MessageIDs, entry.Replay)
	return nil
}

// UpdateOperator implements OperatorRepository.
func (LogOnlyLogger) UpdateOperator(ctx context.Context, userID int64, username, firstName, lastName string, isAdmin bool, command string) error {
	return nil
}
