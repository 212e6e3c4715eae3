package main

import (
	"context"
	"flag"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"speech-ai-subscription/internal/config"
	"speech-ai-subscription/internal/domain/model"
	"speech-ai-subscription/internal/infra/db/postgres"
	"speech-ai-subscription/internal/infra/redis"
)

// This script sets up a clean, predictable database state for manual
// end-to-end testing.
func main() {
	ctx := context.Background()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	// --- Connect to Postgres ---
	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 5)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	// --- Connect to Redis ---
	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	// 1. Clean the Redis cache to remove any stale data.
	log.Println("[1/4] Wiping Redis cache...")
	if err := redisClient.FlushDB(ctx); err != nil {
		log.Fatalf("failed to flush redis: %v", err)
	}

	// 2. Apply the schema and wipe existing data.
	log.Println("[2/4] Applying schema and wiping existing data...")
	if err := postgres.ApplySchema(ctx, pool); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}
	_, err = pool.Exec(ctx, `
		TRUNCATE
			teachers, plans, subscription_periods,
			teacher_subscription_transactions, point_usage_logs
		RESTART IDENTITY CASCADE;
	`)
	if err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	// 3. Seed the standard plan catalog.
	log.Println("[3/4] Seeding standard plans...")
	seedPlans(ctx, pool)

	// 4. Seed a couple of teachers for manual runs.
	log.Println("[4/4] Seeding test teachers...")
	seedTeachers(ctx, pool)

	log.Println("--- E2E Environment Setup Complete ---")
}

func seedPlans(ctx context.Context, pool *pgxpool.Pool) {
	planRepo := postgres.NewPlanRepo(pool)

	// 5 hours of scoring per month.
	standard, _ := model.NewPlan(uuid.NewString(), "Standard Monthly", 29900, 18000, 30)
	if err := planRepo.Save(ctx, nil, standard); err != nil {
		log.Printf("failed to save standard plan: %v", err)
	}

	// 15 hours of scoring per month.
	pro, _ := model.NewPlan(uuid.NewString(), "Pro Monthly", 69900, 54000, 30)
	if err := planRepo.Save(ctx, nil, pro); err != nil {
		log.Printf("failed to save pro plan: %v", err)
	}
}

func seedTeachers(ctx context.Context, pool *pgxpool.Pool) {
	rows := []struct {
		ref       string
		autoRenew bool
	}{
		{"merchant-ref-alpha", true},
		{"merchant-ref-beta", false},
	}
	for _, row := range rows {
		_, err := pool.Exec(ctx, `
			INSERT INTO teachers (id, merchant_reference, auto_renew, is_admin, created_at)
			VALUES ($1, $2, $3, FALSE, NOW())
			ON CONFLICT (merchant_reference) DO NOTHING;
		`, uuid.NewString(), row.ref, row.autoRenew)
		if err != nil {
			log.Printf("failed to seed teacher %s: %v", row.ref, err)
		}
	}
}
