package main

import (
	"context"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
)

var specializations = []string{
	"Therapist",
	"Cardiologist",
	"Dermatologist",
	"Neurologist",
	"Ophthalmologist",
	"Orthopedist",
	"Pediatrician",
	"Endocrinologist",
	"ENT",
	"Gynecologist",
}

var clinicServices = []struct {
	name     string
	minutes  int
	priceRub int64
}{
	{"Primary consultation", 30, 1500},
	{"Follow-up consultation", 20, 1000},
	{"ECG", 15, 800},
	{"Ultrasound examination", 30, 2500},
	{"Blood test", 10, 600},
	{"Vaccination", 15, 1200},
	{"Eye examination", 30, 1800},
	{"Dermatoscopy", 20, 1400},
}

func main() {
	_ = godotenv.Load()
	logger := logging.New(logging.Options{Level: os.Getenv("LOG_LEVEL"), Service: "seed"})
	logger.Info("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}

	if err := db.MigrateUp(dsn); err != nil {
		logger.Fatal("apply migrations", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Fatal("connect postgres", "error", err)
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedDoctors(context.Background(), pool, faker, getInt("SEED_DOCTORS", 20), logger); err != nil {
		logger.Fatal("seed doctors", "error", err)
	}
	if err := seedServices(context.Background(), pool, logger); err != nil {
		logger.Fatal("seed services", "error", err)
	}
	if err := seedPatients(context.Background(), pool, faker, getInt("SEED_PATIENTS", 2000), logger); err != nil {
		logger.Fatal("seed patients", "error", err)
	}

	logger.Info("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger *logging.Logger) error {
	logger.Info("seeding doctors", "count", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		rating := math.Round(faker.Float64Range(3.5, 5.0)*10) / 10
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialization, room, experience_years, rating, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		`,
			uuid.New(),
			faker.Name(),
			specializations[faker.Number(0, len(specializations)-1)],
			strconv.Itoa(faker.Number(101, 350)),
			faker.Number(1, 35),
			rating,
			// roughly one in ten doctors is not taking appointments
			faker.Number(1, 10) != 1,
		)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info("doctors seeded")
	return nil
}

func seedServices(ctx context.Context, pool *pgxpool.Pool, logger *logging.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, s := range clinicServices {
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, duration_minutes, price_cents)
			VALUES ($1, $2, $3, $4)
		`, uuid.New(), s.name, s.minutes, s.priceRub*100)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info("services seeded", "count", len(clinicServices))
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger *logging.Logger) error {
	logger.Info("seeding patients", "count", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			email := faker.Email()

			// a third of patients have linked a Telegram chat
			var chatID *string
			if faker.Number(1, 3) == 1 {
				id := strconv.FormatInt(faker.Int64()&0x7fffffffff, 10)
				chatID = &id
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, phone, email, telegram_chat_id, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, now(), now())
				ON CONFLICT (telegram_chat_id) DO NOTHING
			`, uuid.New(), faker.Name(), faker.Phone(), &email, chatID)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info("patients seeded", "done", end, "total", count)
	}

	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
