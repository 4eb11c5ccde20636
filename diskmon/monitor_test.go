package diskmon

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threelight/redisgate/redisclient"
)

func fixedSampler(records []Record) Sampler {
	return func(context.Context) ([]Record, error) {
		return records, nil
	}
}

func testStore(t *testing.T) (*redisclient.Session, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := redisclient.NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close() })

	sess, err := client.Session(context.Background())
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	return sess, mr
}

func TestNewMonitor_Validation(t *testing.T) {
	sess, _ := testStore(t)

	_, err := NewMonitor(Deps{Interval: time.Minute})
	assert.Error(t, err, "store is required")

	_, err = NewMonitor(Deps{Store: sess})
	assert.Error(t, err, "interval is required")
}

func TestCycle_StoresAndPublishesEveryMount(t *testing.T) {
	sess, mr := testStore(t)

	records := []Record{
		{Timestamp: 1700000000000000000, TotalSpace: 1000, FreeSpace: 400, Path: "/"},
		{Timestamp: 1700000000000000000, TotalSpace: 5000, FreeSpace: 4999, Path: "/data"},
	}

	m, err := NewMonitor(Deps{
		Store:    sess,
		Sampler:  fixedSampler(records),
		Interval: time.Minute,
	})
	require.NoError(t, err)

	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe("system_disk_space")

	require.NoError(t, m.Cycle(context.Background()))

	for _, rec := range records {
		raw := mr.HGet("system_disk_space", rec.Path)
		require.NotEmpty(t, raw, "mount %s", rec.Path)

		var got Record
		require.NoError(t, json.Unmarshal([]byte(raw), &got))
		assert.Equal(t, rec, got)
	}

	for i := 0; i < len(records); i++ {
		select {
		case msg := <-sub.Messages():
			assert.Equal(t, "system_disk_space", msg.Channel)
			assert.Contains(t, msg.Message, "total_space")
		case <-time.After(time.Second):
			t.Fatal("expected one notification per mount")
		}
	}
}

func TestCycle_SamplerFailure(t *testing.T) {
	sess, _ := testStore(t)

	m, err := NewMonitor(Deps{
		Store:    sess,
		Sampler:  func(context.Context) ([]Record, error) { return nil, errors.New("no disks") },
		Interval: time.Minute,
	})
	require.NoError(t, err)

	assert.Error(t, m.Cycle(context.Background()))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	sess, _ := testStore(t)

	var mu sync.Mutex
	cycles := 0
	m, err := NewMonitor(Deps{
		Store: sess,
		Sampler: func(context.Context) ([]Record, error) {
			mu.Lock()
			cycles++
			mu.Unlock()
			return nil, nil
		},
		Interval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err = m.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, cycles, 2, "first cycle runs immediately, then on each tick")
}

func TestSystemSampler_ReturnsRecords(t *testing.T) {
	records, err := SystemSampler(context.Background())
	if err != nil {
		t.Skipf("no partition information available: %v", err)
	}
	for _, rec := range records {
		assert.NotEmpty(t, rec.Path)
		assert.NotZero(t, rec.Timestamp)
	}
}
