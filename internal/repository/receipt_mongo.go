package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/realtime-service/internal/models"
)

type mongoReceiptRepo struct {
	coll *mongo.Collection
}

func NewMongoReceiptRepository(coll *mongo.Collection) ReceiptRepository {
	// unique (message_id, user_id): concurrent joins by the same user must
	// not create duplicate rows
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("message_user_idx"),
	}
	_, _ = coll.Indexes().CreateOne(context.Background(), idx)
	return &mongoReceiptRepo{coll: coll}
}

func (r *mongoReceiptRepo) UpsertDelivered(ctx context.Context, messageIDs []string, userID, userName string, at time.Time) error {
	return r.upsert(ctx, messageIDs, userID, userName, at, false)
}

func (r *mongoReceiptRepo) UpsertSeen(ctx context.Context, messageIDs []string, userID, userName string, at time.Time) error {
	return r.upsert(ctx, messageIDs, userID, userName, at, true)
}

// upsert uses pipeline updates so delivered_at and seen_at are set only when
// absent; a retried or concurrent call leaves existing timestamps untouched.
func (r *mongoReceiptRepo) upsert(ctx context.Context, messageIDs []string, userID, userName string, at time.Time, seen bool) error {
	if len(messageIDs) == 0 {
		return nil
	}
	set := bson.D{
		{Key: "user_name", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$user_name", userName}}}},
		{Key: "delivered_at", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$delivered_at", at}}}},
	}
	if seen {
		set = append(set, bson.E{Key: "seen_at", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$seen_at", at}}}})
	}
	update := mongo.Pipeline{bson.D{{Key: "$set", Value: set}}}

	writes := make([]mongo.WriteModel, 0, len(messageIDs))
	for _, id := range messageIDs {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"message_id": id, "user_id": userID}).
			SetUpdate(update).
			SetUpsert(true))
	}
	_, err := r.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	return err
}

func (r *mongoReceiptRepo) SummarizeByMessageIDs(ctx context.Context, messageIDs []string) (map[string]*models.ReceiptSummary, error) {
	out := make(map[string]*models.ReceiptSummary, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	seenCond := bson.D{{Key: "$gt", Value: bson.A{"$seen_at", nil}}}
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"message_id": bson.M{"$in": messageIDs}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$message_id"},
			{Key: "delivered_count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "seen_count", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{seenCond, 1, 0}},
			}}}},
			{Key: "seen_by_raw", Value: bson.D{{Key: "$push", Value: bson.D{
				{Key: "$cond", Value: bson.A{seenCond, "$user_name", ""}},
			}}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "message_id", Value: "$_id"},
			{Key: "delivered_count", Value: 1},
			{Key: "seen_count", Value: 1},
			{Key: "seen_by", Value: bson.D{{Key: "$filter", Value: bson.D{
				{Key: "input", Value: "$seen_by_raw"},
				{Key: "as", Value: "n"},
				{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$n", ""}}}},
			}}}},
		}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var s models.ReceiptSummary
		if err := cur.Decode(&s); err != nil {
			return nil, err
		}
		out[s.MessageID] = &s
	}
	return out, cur.Err()
}
