// Package service holds the job-posting business logic: community problem
// reports funded by a Lightning payment, created through the L402-protected
// API.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Job struct {
	ID                 string    `json:"id"`
	Description        string    `json:"description"`
	Reward             int64     `json:"reward"`
	ImageURL           string    `json:"image_url,omitempty"`
	Location           string    `json:"location,omitempty"`
	Latitude           *float64  `json:"latitude,omitempty"`
	Longitude          *float64  `json:"longitude,omitempty"`
	City               string    `json:"city,omitempty"`
	FundingPaymentHash string    `json:"funding_payment_hash"`
	CreatedAt          time.Time `json:"created_at"`
}

type CreateJobParams struct {
	Description        string
	Reward             int64
	ImageURL           string
	Location           string
	Latitude           *float64
	Longitude          *float64
	FundingPaymentHash string
}

type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewService(db *sql.DB, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// CreateFundedJob stores a job whose reward is already covered by a settled
// invoice, identified by the funding payment hash.
func (s *Service) CreateFundedJob(ctx context.Context, params CreateJobParams) (string, error) {
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, description, reward, image_url, location, latitude, longitude, city, funding_payment_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, params.Description, params.Reward, params.ImageURL, params.Location,
		params.Latitude, params.Longitude, params.Location, params.FundingPaymentHash, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("inserting job: %w", err)
	}

	s.logger.Info("Created funded job.",
		zap.String("job-id", id),
		zap.Int64("reward", params.Reward),
		zap.String("payment-hash", params.FundingPaymentHash))

	return id, nil
}

// ListJobs returns the most recently created jobs.
func (s *Service) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description, reward, image_url, location, latitude, longitude, city, funding_payment_hash, created_at
		 FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}

	defer rows.Close()

	jobs := []Job{}

	for rows.Next() {
		var (
			job       Job
			imageURL  sql.NullString
			location  sql.NullString
			latitude  sql.NullFloat64
			longitude sql.NullFloat64
			city      sql.NullString
		)

		if err := rows.Scan(&job.ID, &job.Description, &job.Reward, &imageURL, &location,
			&latitude, &longitude, &city, &job.FundingPaymentHash, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}

		job.ImageURL = imageURL.String
		job.Location = location.String
		job.City = city.String

		if latitude.Valid {
			job.Latitude = &latitude.Float64
		}

		if longitude.Valid {
			job.Longitude = &longitude.Float64
		}

		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}

	return jobs, nil
}
