package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyops/dsar/internal/queue"
)

func TestJob_Decode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    queue.Job
		wantErr bool
	}{
		{name: "initiate", data: `{"job_type":"initiate","request_id":"dr_1"}`, want: queue.Job{Type: queue.KindInitiate, RequestID: "dr_1"}},
		{name: "missing id", data: `{"job_type":"process"}`, wantErr: true},
		{name: "not json", data: `process dr_1`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := queue.Decode([]byte(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, queue.ErrInvalidJob)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJob_Encode(t *testing.T) {
	data, err := queue.Job{Type: queue.KindProcess, RequestID: "dr_1"}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"job_type":"process","request_id":"dr_1"}`, string(data))

	_, err = queue.Job{Type: queue.KindProcess}.Encode()
	assert.ErrorIs(t, err, queue.ErrInvalidJob)
}

func TestMemoryQueue(t *testing.T) {
	q := queue.NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, queue.Job{Type: queue.KindInitiate, RequestID: "dr_1"}))
	q.FailWith(errors.New("broker down"))
	assert.Error(t, q.Publish(ctx, queue.Job{Type: queue.KindProcess, RequestID: "dr_1"}))

	assert.Len(t, q.Jobs(), 1)
	assert.Len(t, q.Drain(), 1)
	assert.Empty(t, q.Jobs())
}
