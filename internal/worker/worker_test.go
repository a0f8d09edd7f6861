package worker

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facechanger/internal/entity"
	"facechanger/internal/model/memory"
	"facechanger/internal/service"
)

type fakeProcessor struct {
	mu     sync.Mutex
	seen   []int64
	fail   map[int64]error
	panics map[int64]bool
	done   chan int64
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{fail: map[int64]error{}, panics: map[int64]bool{}, done: make(chan int64, 16)}
}

func (p *fakeProcessor) ProcessFrame(ctx context.Context, frameID int64, opts service.ProcessOptions) (*service.Outcome, error) {
	defer func() { p.done <- frameID }()
	p.mu.Lock()
	p.seen = append(p.seen, frameID)
	err := p.fail[frameID]
	boom := p.panics[frameID]
	p.mu.Unlock()
	if boom {
		panic("detector crashed")
	}
	if err != nil {
		return nil, err
	}
	return &service.Outcome{FrameID: frameID, Status: entity.GenerationStatusCompleted}, nil
}

func waitFrames(t *testing.T, p *fakeProcessor, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-p.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d jobs finished", i, n)
		}
	}
}

func TestMemoryQueueFIFOAndBounds(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(2)

	require.NoError(t, q.Push(ctx, Job{FrameID: 1}))
	require.NoError(t, q.Push(ctx, Job{FrameID: 2}))
	assert.ErrorIs(t, q.Push(ctx, Job{FrameID: 3}), ErrQueueFull)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	job, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, job.FrameID)

	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Push(ctx, Job{FrameID: 4}), ErrQueueClosed)
}

func TestMemoryQueuePopHonoursContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJobCodec(t *testing.T) {
	payload, err := Job{FrameID: 7, OverwriteMask: true, Reason: ReasonRedo}.encode()
	require.NoError(t, err)

	job, err := decodeJob(payload)
	require.NoError(t, err)
	assert.EqualValues(t, 7, job.FrameID)
	assert.True(t, job.OverwriteMask)
	assert.Equal(t, ReasonRedo, job.Reason)

	_, err = decodeJob(`{"frame_id":0}`)
	assert.Error(t, err)
	_, err = decodeJob(`not json`)
	assert.Error(t, err)
}

func TestPoolSurvivesFailuresAndPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue(8)
	proc := newFakeProcessor()
	proc.fail[2] = errors.New("oom")
	proc.panics[3] = true

	pool, err := NewPool(q, proc, 2)
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- pool.Run(ctx) }()

	for _, id := range []int64{1, 2, 3, 4} {
		require.NoError(t, q.Push(ctx, Job{FrameID: id}))
	}
	waitFrames(t, proc, 4)

	require.Eventually(t, func() bool {
		s := pool.Stats()
		return s.Processed+s.Failed == 4 && s.Active == 0
	}, time.Second, 5*time.Millisecond)
	stats := pool.Stats()
	assert.EqualValues(t, 2, stats.Processed)
	assert.EqualValues(t, 2, stats.Failed)
	assert.Equal(t, 2, stats.Workers)

	require.NoError(t, q.Close())
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after queue close")
	}
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	sku := &entity.DbSku{Code: "d-1"}
	require.NoError(t, repo.CreateSku(ctx, sku))

	ready := &entity.DbFrame{SkuID: sku.ID, OriginalKey: "uploads/d-1/a.png"}
	running := &entity.DbFrame{SkuID: sku.ID, OriginalKey: "uploads/d-1/b.png", Status: entity.FrameStatusRunning}
	bare := &entity.DbFrame{SkuID: sku.ID}
	for _, f := range []*entity.DbFrame{ready, running, bare} {
		require.NoError(t, repo.CreateFrame(ctx, f))
	}

	q := NewMemoryQueue(8)
	redo := &fakeRedo{}
	d := NewDispatcher(repo, q, redo)

	n, err := d.EnqueueSku(ctx, sku.ID, service.ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, ready.ID, job.FrameID)
	assert.Equal(t, ReasonSku, job.Reason)
	assert.False(t, job.EnqueuedAt.IsZero())

	assert.ErrorIs(t, d.EnqueueFrame(ctx, bare.ID, service.ProcessOptions{}), service.ErrMissingImage)
	assert.ErrorIs(t, d.EnqueueFrame(ctx, 9999, service.ProcessOptions{}), entity.ErrNotFound)
	_, err = d.EnqueueSku(ctx, 9999, service.ProcessOptions{})
	assert.ErrorIs(t, err, entity.ErrNotFound)

	require.NoError(t, d.EnqueueRedo(ctx, ready.ID, entity.JSONMap{"num_outputs": 1}, service.ProcessOptions{OverwriteMask: true}))
	assert.Equal(t, []int64{ready.ID}, redo.frames)
	job, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReasonRedo, job.Reason)
	assert.True(t, job.OverwriteMask)
}

type fakeRedo struct {
	frames []int64
}

func (f *fakeRedo) PrepareRedo(ctx context.Context, frameID int64, overrides entity.JSONMap) (*entity.DbFrame, error) {
	f.frames = append(f.frames, frameID)
	return &entity.DbFrame{ID: frameID}, nil
}

// 设置 REDIS_TEST_URL 后才会连接真实 Redis
func TestRedisQueueRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	name := "facechanger:test:" + time.Now().UTC().Format("150405.000000")
	q, err := NewRedisQueueFromURL(url, name)
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defer q.client.Del(context.Background(), name)

	require.NoError(t, q.Push(ctx, Job{FrameID: 1, Reason: ReasonFrame}))
	require.NoError(t, q.Push(ctx, Job{FrameID: 2, Reason: ReasonFrame}))
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	first, err := q.Pop(ctx)
	require.NoError(t, err)
	second, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.FrameID)
	assert.EqualValues(t, 2, second.FrameID)
}
