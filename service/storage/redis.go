package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

var (
	rdb *redis.Client
	ctx = context.Background()
)

func InitRedis(c Config) error {
	rdb = redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	return rdb.Ping(ctx).Err()
}

func GetRedis() *redis.Client { return rdb }

func CloseRedis() error {
	if rdb == nil {
		return nil
	}
	return rdb.Close()
}

func requireRedis() error {
	if rdb == nil {
		return fmt.Errorf("redis not initialized")
	}
	return nil
}
