package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/realtime-service/internal/models"
)

type mongoMessageRepo struct {
	coll *mongo.Collection
}

func NewMongoMessageRepository(coll *mongo.Collection) MessageRepository {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("room_created_idx"),
	}
	_, _ = coll.Indexes().CreateOne(context.Background(), idx)
	return &mongoMessageRepo{coll: coll}
}

func (r *mongoMessageRepo) Insert(ctx context.Context, m *models.Message) error {
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *mongoMessageRepo) FindByID(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *mongoMessageRepo) ListByRoom(ctx context.Context, roomID string, limit int64, before time.Time) ([]*models.Message, error) {
	filter := bson.M{"room_id": roomID}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	// chronological order for the client
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *mongoMessageRepo) ListForeignIDs(ctx context.Context, roomID, userID string) ([]string, error) {
	filter := bson.M{
		"room_id":    roomID,
		"is_deleted": false,
		"author_id":  bson.M{"$ne": userID},
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

func (r *mongoMessageRepo) UpdateContent(ctx context.Context, id, text string, at time.Time) error {
	// is_deleted in the filter: an edit landing after a concurrent delete
	// must not write content back into the tombstone
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id, "is_deleted": false}, bson.M{"$set": bson.M{
		"content":    text,
		"updated_at": at,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoMessageRepo) SoftDelete(ctx context.Context, id string) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"is_deleted": true,
		"content":    "",
		"media_url":  "",
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleReaction is two conditional single-key writes, each atomic on the
// server: a $pull that matches only when the user already reacted, otherwise
// an $addToSet. Whole-map writes would let concurrent togglers erase each
// other.
func (r *mongoMessageRepo) ToggleReaction(ctx context.Context, id, emoji, userID string) (*models.Message, error) {
	key := "reactions." + emoji
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "is_deleted": false, key: userID},
		bson.M{"$pull": bson.M{key: userID}})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 1 {
		// last reactor gone: drop the empty key
		_, err = r.coll.UpdateOne(ctx,
			bson.M{"_id": id, key: bson.M{"$size": 0}},
			bson.M{"$unset": bson.M{key: ""}})
		if err != nil {
			return nil, err
		}
		return r.FindByID(ctx, id)
	}
	res, err = r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "is_deleted": false},
		bson.M{"$addToSet": bson.M{key: userID}})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}
