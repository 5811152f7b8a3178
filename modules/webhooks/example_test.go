package webhooks_test

import (
	"context"
	"log"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/hookrelay/hookrelay/modules/webhooks"
	"github.com/hookrelay/hookrelay/pkg/config"
	"github.com/hookrelay/hookrelay/pkg/pg"
	"github.com/hookrelay/hookrelay/pkg/redis"
)

// Example shows the full production wiring: env config, Postgres store with
// migrations, Redis-backed subscription cache, and the delivery pipeline
// behind the management API.
func Example() {
	ctx := context.Background()

	var cfg struct {
		PG      pg.Config
		Redis   redis.Config
		Webhook webhooks.Config
	}
	config.MustLoad(&cfg)

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, cfg.PG, slog.Default()); err != nil {
		log.Fatal(err)
	}

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Fatal(err)
	}
	defer redisClient.Close()

	svc := webhooks.New(
		webhooks.NewPostgresStore(pool),
		webhooks.NewRedisCache(redisClient),
		webhooks.WithConfig(cfg.Webhook),
	)
	if err := svc.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer svc.Stop()

	// Publish platform events from anywhere in the application:
	ownerID := uuid.MustParse("9f3b8c1e-0b32-4f64-9a4e-2f9d0a6c7e11")
	_, _ = svc.Trigger(ctx, ownerID, "user.created", map[string]string{
		"user_id": "u_123",
	})

	// Mount the management API under the application router:
	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", svc.Router()))
}
