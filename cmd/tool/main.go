// Command tool runs one-shot operator tasks against the visitor-state
// stores:
//
//	tool -task=notify               scan guest carts, publish cart.abandoned, mark notified
//	tool -task=purge -device=<id>   delete every key owned by one device
//	tool -task=migrate              apply migrations/*.sql
//	tool -task=token -user=<uuid>   sign a dev session token
//	tool -task=smoke -base-url=...  toggle through a running service and reconcile
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/audit"
	"github.com/baechuer/artfront/services/visitor-state/internal/config"
	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/baechuer/artfront/services/visitor-state/internal/infrastructure/postgres"
	"github.com/baechuer/artfront/services/visitor-state/internal/infrastructure/rabbitmq"
	"github.com/baechuer/artfront/services/visitor-state/internal/infrastructure/redis"
	"github.com/baechuer/artfront/services/visitor-state/internal/pkg/logger"
	"github.com/baechuer/artfront/services/visitor-state/internal/security"
	"github.com/baechuer/artfront/services/visitor-state/internal/service"
	"github.com/baechuer/artfront/services/visitor-state/pkg/client"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

func main() {
	task := flag.String("task", "", "notify | purge | migrate | token | smoke")
	device := flag.String("device", "", "device id (purge, smoke)")
	user := flag.String("user", "", "user id (token); random when empty")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime (token)")
	baseURL := flag.String("base-url", "http://localhost:8080", "service base url (smoke)")
	kind := flag.String("kind", "cart", "list kind (smoke)")
	item := flag.String("item", "smoke-item", "item id (smoke)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	logger.Init()
	log := logger.Logger.With().Str("service", "visitor-state-tool").Str("task", *task).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *task {
	case "notify":
		err = runNotify(ctx, cfg, log)
	case "purge":
		err = runPurge(ctx, cfg, log, *device)
	case "migrate":
		err = runMigrate(ctx, cfg, log)
	case "token":
		err = runToken(cfg, *user, *ttl)
	case "smoke":
		err = runSmoke(ctx, log, *baseURL, *kind, *device, *item)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Msg("task failed")
		os.Exit(1)
	}
}

func runNotify(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer store.Close()

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange)
	if err != nil {
		return fmt.Errorf("rabbitmq connect: %w", err)
	}
	defer pub.Close()

	s := service.NewNotificationScheduler(store, store, domain.SystemClock{}, cfg.NotifyMinInterval, audit.New(log))
	sent, err := s.Dispatch(ctx, pub)
	if err != nil {
		return err
	}
	log.Info().Int("sent", sent).Dur("interval", s.Interval()).Msg("abandoned-cart scan complete")
	return nil
}

func runPurge(ctx context.Context, cfg *config.Config, log zerolog.Logger, deviceID string) error {
	if err := domain.ValidateDeviceID(deviceID); err != nil {
		return fmt.Errorf("-device: %w", err)
	}
	store := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer store.Close()

	n, err := store.PurgeDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	log.Info().Str("device_id", deviceID).Int64("keys_deleted", n).Msg("device purged")
	return nil
}

func runMigrate(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := postgres.ApplyMigrations(ctx, pool, cfg.MigrationsDir)
	if err != nil {
		return err
	}
	log.Info().Strs("files", applied).Msg("migrations applied")
	return nil
}

func runToken(cfg *config.Config, userID string, ttl time.Duration) error {
	if userID == "" {
		userID = uuid.NewString()
	} else if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("-user: %w", err)
	}
	tok, err := security.SignHS256(cfg.JWTSecret, userID, cfg.JWTIssuer, ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

// runSmoke toggles one item twice through the reconciler against a live
// service; the list must end where it started.
func runSmoke(ctx context.Context, log zerolog.Logger, baseURL, kind, deviceID, itemID string) error {
	if deviceID == "" {
		deviceID = "smoke-" + uuid.NewString()[:8]
	}
	refetches := 0
	r := client.NewReconciler(
		client.NewAPIClient(baseURL, kind, deviceID, ""),
		client.WithLogger(log),
		client.WithRefetchHook(func(cause string) {
			refetches++
			log.Warn().Str("cause", cause).Msg("forced refetch")
		}),
	)
	if err := r.Load(ctx); err != nil {
		return err
	}
	before := r.IsActive(itemID)

	first, err := r.Toggle(ctx, itemID)
	if err != nil {
		return err
	}
	second, err := r.Toggle(ctx, itemID)
	if err != nil {
		return err
	}
	if first == second || second != before {
		return fmt.Errorf("toggle not self-inverse: before=%v first=%v second=%v", before, first, second)
	}
	log.Info().Str("device_id", deviceID).Int("refetches", refetches).Strs("items", r.Items()).Msg("smoke ok")
	return nil
}
