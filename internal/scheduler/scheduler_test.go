package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"serialrent-backend/internal/config"
	"serialrent-backend/internal/jobs"
	"serialrent-backend/internal/repository/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const baseConfig = `
server:
  port: 50051
database:
  driver: memory
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
`

func TestNewScheduler_RegistersJobs(t *testing.T) {
	cfg, err := config.Parse([]byte(baseConfig))
	require.NoError(t, err)

	s, err := NewScheduler(jobs.NewJobRunner(memory.NewStore(), &jobs.Services{}, cfg, nil))
	require.NoError(t, err)
	assert.Equal(t, 4, s.Entries())

	s.Start()
	s.Stop()
}

func TestNewScheduler_RejectsBadSpec(t *testing.T) {
	cfg, err := config.Parse([]byte(baseConfig + "scheduler:\n  check_low_stock: \"every tuesday\"\n"))
	require.NoError(t, err)

	_, err = NewScheduler(jobs.NewJobRunner(memory.NewStore(), &jobs.Services{}, cfg, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CheckLowStock")
}
