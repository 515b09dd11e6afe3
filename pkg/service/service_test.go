package service

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE jobs (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		reward INTEGER NOT NULL,
		image_url TEXT,
		location TEXT,
		latitude REAL,
		longitude REAL,
		city TEXT,
		funding_payment_hash TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	require.NoError(t, err)

	return NewService(db, zap.NewNop())
}

func TestCreateFundedJobAndList(t *testing.T) {
	s := newTestService(t)

	latitude := 37.7749
	longitude := -122.4194

	jobID, err := s.CreateFundedJob(context.Background(), CreateJobParams{
		Description:        "Broken streetlight on the corner",
		Reward:             1000,
		Location:           "Mission District",
		Latitude:           &latitude,
		Longitude:          &longitude,
		FundingPaymentHash: "a1b2c3",
	})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	jobs, err := s.ListJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	job := jobs[0]
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, "Broken streetlight on the corner", job.Description)
	assert.Equal(t, int64(1000), job.Reward)
	assert.Equal(t, "Mission District", job.Location)
	require.NotNil(t, job.Latitude)
	assert.Equal(t, latitude, *job.Latitude)
	assert.Equal(t, "a1b2c3", job.FundingPaymentHash)
}

func TestCreateFundedJobWithoutCoordinates(t *testing.T) {
	s := newTestService(t)

	_, err := s.CreateFundedJob(context.Background(), CreateJobParams{
		Description:        "Graffiti on the library wall",
		Reward:             500,
		FundingPaymentHash: "d4e5f6",
	})
	require.NoError(t, err)

	jobs, err := s.ListJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	assert.Nil(t, jobs[0].Latitude)
	assert.Nil(t, jobs[0].Longitude)
}

func TestListJobsRespectsLimit(t *testing.T) {
	s := newTestService(t)

	for i := 0; i < 5; i++ {
		_, err := s.CreateFundedJob(context.Background(), CreateJobParams{
			Description:        "job",
			Reward:             100,
			FundingPaymentHash: "hash",
		})
		require.NoError(t, err)
	}

	jobs, err := s.ListJobs(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestListJobsEmpty(t *testing.T) {
	s := newTestService(t)

	jobs, err := s.ListJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
