package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/realtime-service/internal/models"
)

type mongoRoomRepo struct {
	coll *mongo.Collection
}

func NewMongoRoomRepository(coll *mongo.Collection) RoomRepository {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "members", Value: 1}},
		Options: options.Index().SetName("members_idx"),
	}
	_, _ = coll.Indexes().CreateOne(context.Background(), idx)
	return &mongoRoomRepo{coll: coll}
}

func (r *mongoRoomRepo) FindByID(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&room); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

func (r *mongoRoomRepo) AddMember(ctx context.Context, roomID, userID string) error {
	_, err := r.coll.UpdateByID(ctx, roomID, bson.M{"$addToSet": bson.M{"members": userID}})
	return err
}

func (r *mongoRoomRepo) TouchActivity(ctx context.Context, roomID string, at time.Time) error {
	_, err := r.coll.UpdateByID(ctx, roomID, bson.M{"$set": bson.M{"last_activity_at": at}})
	return err
}

func (r *mongoRoomRepo) SetPinned(ctx context.Context, roomID, messageID string) error {
	res, err := r.coll.UpdateByID(ctx, roomID, bson.M{"$set": bson.M{"pinned_message_id": messageID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoRoomRepo) ClearPinned(ctx context.Context, roomID string) error {
	_, err := r.coll.UpdateByID(ctx, roomID, bson.M{"$unset": bson.M{"pinned_message_id": ""}})
	return err
}

func (r *mongoRoomRepo) ClearPinnedIf(ctx context.Context, roomID, messageID string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": roomID, "pinned_message_id": messageID},
		bson.M{"$unset": bson.M{"pinned_message_id": ""}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}
