package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoConfig struct {
	URI         string
	Database    string
	MaxPoolSize uint64
}

// InitMongo connects and pings with a bounded timeout.
func InitMongo(ctx context.Context, c MongoConfig) (*mongo.Database, func(), error) {
	if c.MaxPoolSize == 0 {
		c.MaxPoolSize = 20
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx,
		options.Client().ApplyURI(c.URI).SetMaxPoolSize(c.MaxPoolSize))
	if err != nil {
		return nil, nil, errors.Wrap(err, "mongo connect")
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, nil, errors.Wrap(err, "mongo ping")
	}

	closer := func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		_ = client.Disconnect(shutCtx)
	}
	return client.Database(c.Database), closer, nil
}
