package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeList struct {
	key    string
	values []interface{}
	length int64
	err    error
}

func (f *fakeList) RPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.key = key
	f.values = append(f.values, values...)
	return redis.NewIntResult(f.length, f.err)
}

func TestJobQueueRepository_Publish(t *testing.T) {
	list := &fakeList{length: 4}
	repo := NewJobQueueRepository(list, "crm:jobs")

	job := domain.Job{
		FlowID:       3,
		DispatchID:   "dsp-3",
		BranchID:     1,
		TargetPhones: []string{"01012345678"},
		Action:       domain.JobActionMessage,
		Payload:      domain.JobPayload{Message: &domain.MessageConfig{Template: "hello"}},
	}
	require.NoError(t, repo.Publish(context.Background(), job))

	assert.Equal(t, "crm:jobs", list.key)
	require.Len(t, list.values, 1)
	raw, ok := list.values[0].([]byte)
	require.True(t, ok)

	var got domain.Job
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, job, got)
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.JobQueuePending))
}

func TestJobQueueRepository_PublishError(t *testing.T) {
	list := &fakeList{err: errors.New("connection refused")}
	repo := NewJobQueueRepository(list, "crm:jobs")

	err := repo.Publish(context.Background(), domain.Job{FlowID: 1, DispatchID: "dsp-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
