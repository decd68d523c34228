package seq

import (
	"context"
	"time"

	"QChat/module/chat/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DAO leases per-room sequence segments from Mongo.
type DAO struct{ DB *mongo.Database }

// AllocSegment atomically advances issued_seq by block and returns the
// leased range [start,end]. The document is created on first use.
func (d *DAO) AllocSegment(ctx context.Context, roomID int64, block int64) (start, end int64, err error) {
	if block <= 0 {
		block = 256
	}
	c := d.DB.Collection(model.SeqCollection)
	now := time.Now()

	filter := bson.M{"room_id": roomID}
	update := bson.M{
		"$inc":         bson.M{"issued_seq": block},
		"$setOnInsert": bson.M{"created_at": now},
		"$set":         bson.M{"updated_at": now},
	}

	var before struct {
		IssuedSeq int64 `bson:"issued_seq"`
	}
	err = c.FindOneAndUpdate(
		ctx, filter, update,
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.Before),
	).Decode(&before)
	if err != nil && err != mongo.ErrNoDocuments {
		return 0, 0, err
	}
	old := before.IssuedSeq // zero when the document did not exist
	return old + 1, old + block, nil
}
