package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hookgate/internal/event/mocks"
	"github.com/mattjoyce/hookgate/internal/log"
	"github.com/mattjoyce/hookgate/internal/metrics"
	"github.com/mattjoyce/hookgate/internal/payload"
	"github.com/mattjoyce/hookgate/internal/worker"
)

const commentBody = `{"action":"created","comment":{"id":1},"issue":{"number":2},"repository":{"name":"hookgate"},"sender":{"login":"octocat"}}`

// recordingScheduler captures jobs instead of running them.
type recordingScheduler struct {
	mu   sync.Mutex
	jobs []worker.Job
	ctxs []context.Context
}

func (s *recordingScheduler) Submit(ctx context.Context, job worker.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	s.ctxs = append(s.ctxs, ctx)
	return nil
}

func TestDispatch_SchedulesHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := mocks.NewMockHandler(ctrl)

	reg, err := NewBuilder().On(IssueComment, handler).Build()
	require.NoError(t, err)

	pool := worker.New(2, log.Discard(), nil, nil)
	d := NewDispatcher(reg, pool, log.Discard(), nil)

	called := make(chan *payload.Payload, 1)
	handler.EXPECT().Handle(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, p *payload.Payload) error {
			called <- p
			return nil
		}).Times(1)

	inv, err := d.Dispatch(context.Background(), Request{Event: "issue_comment", Delivery: "d-1", Body: []byte(commentBody)})
	require.NoError(t, err)
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, IssueComment, inv.Type)
	assert.Equal(t, "d-1", inv.Delivery)

	select {
	case p := <-called:
		assert.Equal(t, payload.ActionCreated, p.Action)
		assert.Equal(t, "octocat", p.Sender.GetLogin())
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestDispatch_ReturnsBeforeHandlerCompletes(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	reg, err := NewBuilder().OnFunc(Push, func(ctx context.Context, p *payload.Payload) error {
		<-release
		close(finished)
		return nil
	}).Build()
	require.NoError(t, err)

	pool := worker.New(1, log.Discard(), nil, nil)
	d := NewDispatcher(reg, pool, log.Discard(), nil)

	_, err = d.Dispatch(context.Background(), Request{Event: "push", Body: []byte(`{"repository":{},"sender":{}}`)})
	require.NoError(t, err)

	select {
	case <-finished:
		t.Fatal("handler finished before it was released")
	default:
	}
	close(release)
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestDispatch_TwoIdenticalRequestsRunTwice(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := mocks.NewMockHandler(ctrl)
	reg, err := NewBuilder().On(IssueComment, handler).Build()
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	var mu sync.Mutex
	var seen []*payload.Payload
	handler.EXPECT().Handle(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, p *payload.Payload) error {
			mu.Lock()
			seen = append(seen, p)
			mu.Unlock()
			wg.Done()
			return nil
		}).Times(2)

	pool := worker.New(4, log.Discard(), nil, nil)
	d := NewDispatcher(reg, pool, log.Discard(), nil)

	req := Request{Event: "issue_comment", Body: []byte(commentBody)}
	inv1, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	inv2, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, inv1.ID, inv2.ID)

	wg.Wait()
	require.NoError(t, pool.Shutdown(context.Background()))
	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1], "each invocation decodes its own payload")
}

func TestDispatch_Rejections(t *testing.T) {
	reg, err := NewBuilder().OnFunc(IssueComment, noop).Build()
	require.NoError(t, err)

	tests := []struct {
		name      string
		req       Request
		wantErr   error
		wantStage Stage
	}{
		{
			name:      "missing header",
			req:       Request{Body: []byte(commentBody)},
			wantErr:   ErrMissingEventHeader,
			wantStage: StageHeader,
		},
		{
			name:      "unknown type",
			req:       Request{Event: "not_a_github_event", Body: []byte(commentBody)},
			wantErr:   ErrUnknownEventType,
			wantStage: StageHeader,
		},
		{
			name:      "recognized but unregistered",
			req:       Request{Event: "pull_request", Body: []byte(commentBody)},
			wantErr:   ErrNoHandlerRegistered,
			wantStage: StageResolve,
		},
		{
			name:      "malformed json",
			req:       Request{Event: "issue_comment", Body: []byte(`{"action":`)},
			wantErr:   ErrPayloadDecode,
			wantStage: StageDecode,
		},
		{
			name:      "missing required fields",
			req:       Request{Event: "issue_comment", Body: []byte(`{"action":"created"}`)},
			wantErr:   ErrPayloadDecode,
			wantStage: StageDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &recordingScheduler{}
			d := NewDispatcher(reg, sched, log.Discard(), nil)

			_, err := d.Dispatch(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var de *DispatchError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.wantStage, de.Stage)
			assert.Empty(t, sched.jobs, "no handler may be scheduled")
		})
	}
}

func TestDispatch_UnknownDistinctFromUnregistered(t *testing.T) {
	reg, err := NewBuilder().Build()
	require.NoError(t, err)
	d := NewDispatcher(reg, &recordingScheduler{}, log.Discard(), nil)

	_, unknown := d.Dispatch(context.Background(), Request{Event: "bogus", Body: []byte(commentBody)})
	_, unregistered := d.Dispatch(context.Background(), Request{Event: "issue_comment", Body: []byte(commentBody)})

	assert.ErrorIs(t, unknown, ErrUnknownEventType)
	assert.NotErrorIs(t, unknown, ErrNoHandlerRegistered)
	assert.ErrorIs(t, unregistered, ErrNoHandlerRegistered)
	assert.NotErrorIs(t, unregistered, ErrUnknownEventType)
}

func TestDispatch_SchedulerClosed(t *testing.T) {
	reg, err := NewBuilder().OnFunc(IssueComment, noop).Build()
	require.NoError(t, err)

	pool := worker.New(1, log.Discard(), nil, nil)
	require.NoError(t, pool.Shutdown(context.Background()))

	d := NewDispatcher(reg, pool, log.Discard(), nil)
	_, err = d.Dispatch(context.Background(), Request{Event: "issue_comment", Body: []byte(commentBody)})
	assert.ErrorIs(t, err, ErrNotAccepting)
	assert.ErrorIs(t, err, worker.ErrClosed)
}

func TestDispatch_HandlerContextSurvivesCancellation(t *testing.T) {
	reg, err := NewBuilder().OnFunc(IssueComment, noop).Build()
	require.NoError(t, err)

	sched := &recordingScheduler{}
	d := NewDispatcher(reg, sched, log.Discard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = d.Dispatch(ctx, Request{Event: "issue_comment", Body: []byte(commentBody)})
	require.NoError(t, err)
	cancel()

	require.Len(t, sched.ctxs, 1)
	assert.NoError(t, sched.ctxs[0].Err(), "job context must not inherit request cancellation")
}

func TestDispatch_Metrics(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	reg, err := NewBuilder().OnFunc(IssueComment, noop).Build()
	require.NoError(t, err)
	d := NewDispatcher(reg, &recordingScheduler{}, log.Discard(), m)

	_, _ = d.Dispatch(context.Background(), Request{Event: "issue_comment", Body: []byte(commentBody)})
	_, _ = d.Dispatch(context.Background(), Request{Event: "attacker-chosen-value", Body: []byte(commentBody)})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchTotal.WithLabelValues("issue_comment", "scheduled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchTotal.WithLabelValues("unknown", "unknown_event")))
}
