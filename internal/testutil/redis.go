package testutil

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SetupTestRedis returns a client against the test Redis instance, skipping
// the test when none is reachable. Override the address with TEST_REDIS_ADDR.
func SetupTestRedis(t TestingTB) *redis.Client {
	addr := getEnvOrDefault("TEST_REDIS_ADDR", "localhost:6379")
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Skipping test: redis not available at "+addr+":", err)
		return nil
	}

	return client
}
