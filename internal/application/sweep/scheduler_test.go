package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/go-membership-api/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler_RejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(newJobs(memory.New(), nil), ScheduleConfig{
		ExpireSchedule: "not a cron spec",
		PurgeSchedule:  "30 2 * * *",
	}, nil)
	assert.ErrorContains(t, err, JobExpire)

	_, err = NewScheduler(newJobs(memory.New(), nil), ScheduleConfig{
		ExpireSchedule: "0 2 * * *",
		PurgeSchedule:  "61 2 * * *",
	}, nil)
	assert.ErrorContains(t, err, JobPurge)
}

func TestScheduler_FiresInConfiguredZone(t *testing.T) {
	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	s, err := NewScheduler(newJobs(memory.New(), nil), ScheduleConfig{
		Location:       loc,
		ExpireSchedule: "0 2 * * *",
		PurgeSchedule:  "30 2 * * *",
	}, nil)
	require.NoError(t, err)
	s.Start()
	defer s.Stop(context.Background())

	next := s.Entries()
	require.Len(t, next, 2)
	var got []string
	for _, at := range next {
		got = append(got, at.In(loc).Format("15:04"))
	}
	assert.ElementsMatch(t, []string{"02:00", "02:30"}, got)
}

func TestScheduler_StopHonoursContext(t *testing.T) {
	s, err := NewScheduler(newJobs(memory.New(), nil), ScheduleConfig{
		ExpireSchedule: "@every 1h",
		PurgeSchedule:  "@every 1h",
	}, nil)
	require.NoError(t, err)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Stop(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
