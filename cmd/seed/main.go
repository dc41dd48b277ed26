package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/dental-appointment-assistant/internal/appointment"
	"github.com/hackgods/dental-appointment-assistant/internal/config"
	"github.com/hackgods/dental-appointment-assistant/internal/db"
	"github.com/hackgods/dental-appointment-assistant/pkg/logging"
)

const (
	testPatientName  = "Test Patient"
	testPatientEmail = "test@example.com"
	testDate         = "2023-11-01"
)

var testSlots = []string{"09:00", "10:00"}

func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL"))
	logger.Info("seed starting")

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "load config", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		fatal(logger, "connect postgres", err)
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedDentists(context.Background(), pool, faker, getInt("SEED_DENTISTS", 3), logger); err != nil {
		fatal(logger, "seed dentists", err)
	}
	if err := seedPatients(context.Background(), pool, faker, getInt("SEED_PATIENTS", 200), logger); err != nil {
		fatal(logger, "seed patients", err)
	}

	repo := appointment.NewPgRepository(pool)
	if err := seedTestAppointments(context.Background(), repo, logger); err != nil {
		fatal(logger, "seed test appointments", err)
	}

	logger.Info("seed complete")
}

// seedDentists adds extra dentists next to the default one created by the migrations.
func seedDentists(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger *logging.Logger) error {
	logger.Info("seeding dentists", "count", count)

	specializations := []string{
		"General Dentistry",
		"Orthodontics",
		"Endodontics",
		"Periodontics",
		"Pediatric Dentistry",
		"Prosthodontics",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := 0; i < count; i++ {
		name := "Dr. " + faker.LastName()
		spec := specializations[faker.Number(0, len(specializations)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO dentists (name, specialization)
			VALUES ($1, $2)
		`, name, spec)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
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
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (name, email, phone, created_at)
				VALUES ($1, lower($2), $3, now())
			`, faker.Name(), faker.Email(), faker.Phone())
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

// seedTestAppointments books the fixed demo slots for the test patient. It is
// idempotent: slots that are already booked are left alone.
func seedTestAppointments(ctx context.Context, repo *appointment.PgRepository, logger *logging.Logger) error {
	return repo.WithTx(ctx, func(ctx context.Context, tx appointment.Store) error {
		patients, err := tx.FindPatients(ctx, testPatientName, "")
		if err != nil {
			return err
		}

		var patientID int64
		if len(patients) > 0 {
			patientID = patients[0].ID
		} else {
			p, err := tx.CreatePatient(ctx, testPatientName, testPatientEmail)
			if err != nil {
				return err
			}
			patientID = p.ID
		}

		booked, err := tx.BookedTimes(ctx, testDate, appointment.DefaultDentistID)
		if err != nil {
			return err
		}

		for _, slot := range testSlots {
			if contains(booked, slot) {
				logger.Info("test appointment already exists", "date", testDate, "time", slot)
				continue
			}
			appt, err := tx.CreateAppointment(ctx, appointment.NewAppointment{
				PatientID: patientID,
				DentistID: appointment.DefaultDentistID,
				Date:      testDate,
				Time:      slot,
			})
			if errors.Is(err, appointment.ErrSlotTaken) {
				continue
			}
			if err != nil {
				return err
			}
			logger.Info("test appointment inserted", "id", appt.ID, "date", appt.Date, "time", appt.Time)
		}
		return nil
	})
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func fatal(logger *logging.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
