package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/docpoint/slot-booking/internal/booking"
	"github.com/docpoint/slot-booking/internal/db"
)

var log = zerolog.New(os.Stdout).With().Timestamp().Str("service", "seed").Logger()

func main() {
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(context.Background(), pool, 50); err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	log.Info().Msg("seed complete")
}

var specialities = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var degrees = []string{"MBBS", "MD", "DO", "MBBS, MS", "MBBS, MD"}

// slotGrid builds two weeks of half-hour slots from tomorrow, 09:00-16:30.
func slotGrid(from time.Time) []booking.Slot {
	var slots []booking.Slot
	for day := 1; day <= 14; day++ {
		date := from.AddDate(0, 0, day).Format("2006-01-02")
		for hour := 9; hour < 17; hour++ {
			for _, minute := range []int{0, 30} {
				slots = append(slots, booking.Slot{
					Date: date,
					Time: fmt.Sprintf("%02d:%02d", hour, minute),
				})
			}
		}
	}
	return slots
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Info().Int("count", count).Msg("seeding doctors")

	now := time.Now()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialities[gofakeit.Number(0, len(specialities)-1)]
		degree := degrees[gofakeit.Number(0, len(degrees)-1)]
		experience := fmt.Sprintf("%d years", gofakeit.Number(1, 30))
		fees := int64(gofakeit.Number(20, 200))
		about := gofakeit.Sentence(12)

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (
				id, name, email, image, speciality, degree, experience, about,
				available, fees, slots_available, slots_booked, version,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, '', $4, $5, $6, $7, true, $8, $9, '[]', 0, now(), now())
		`, id, name, gofakeit.Email(), spec, degree, experience, about, fees, slotGrid(now))
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info().Msg("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()
			phone := gofakeit.Phone()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, email, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("seeded", end).Int("total", count).Msg("patients batch committed")
	}

	log.Info().Msg("patients seeded")
	return nil
}
