package worker_test

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/conjunction/internal/adapters/mq/queue"
	worker "github.com/okian/conjunction/internal/adapters/mq/worker"
	logging "github.com/okian/conjunction/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logging.InitWith(io.Discard, "text"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type mockRefresher struct {
	mu       sync.Mutex
	seen     []string
	fail     map[string]error
	deadline bool
	called   chan struct{}
}

func newMockRefresher() *mockRefresher {
	return &mockRefresher{fail: map[string]error{}, called: make(chan struct{}, 64)}
}

func (m *mockRefresher) Refresh(ctx context.Context, req queue.Request) error {
	m.mu.Lock()
	m.seen = append(m.seen, req.Reason)
	_, m.deadline = ctx.Deadline()
	err := m.fail[req.Reason]
	m.mu.Unlock()
	m.called <- struct{}{}
	return err
}

func (m *mockRefresher) reasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.seen...)
}

func waitCalls(ch <-chan struct{}, n int) bool {
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			return false
		}
	}
	return true
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		r := newMockRefresher()
		w := worker.NewInMemoryWorker(q, r, worker.WithName("test-worker"), worker.WithTimeout(time.Minute))
		go w.Run(ctx)

		convey.Convey("When requests are enqueued", func() {
			q.Enqueue(ctx, queue.NewRequest("manual"))
			q.Enqueue(ctx, queue.NewRequest("watch"))

			convey.Convey("Then each is refreshed in order with a deadline", func() {
				convey.So(waitCalls(r.called, 2), convey.ShouldBeTrue)
				convey.So(r.reasons(), convey.ShouldResemble, []string{"manual", "watch"})
				r.mu.Lock()
				convey.So(r.deadline, convey.ShouldBeTrue)
				r.mu.Unlock()
			})
		})

		convey.Convey("When a refresh fails", func() {
			r.fail["bad"] = errors.New("source down")
			q.Enqueue(ctx, queue.NewRequest("bad"))
			q.Enqueue(ctx, queue.NewRequest("good"))

			convey.Convey("Then the worker keeps going", func() {
				convey.So(waitCalls(r.called, 2), convey.ShouldBeTrue)
				convey.So(r.reasons(), convey.ShouldResemble, []string{"bad", "good"})
			})
		})

		convey.Convey("When it is shut down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()

			convey.Convey("Then it stops cleanly and twice is harmless", func() {
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of two workers", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		r := newMockRefresher()
		p := worker.NewPool(2, q, r)
		p.Start(ctx)

		convey.Convey("Then it has two workers", func() {
			convey.So(p.Size(), convey.ShouldEqual, 2)
		})

		convey.Convey("When requests are pending at shutdown", func() {
			for i := 0; i < 5; i++ {
				q.Enqueue(ctx, queue.NewRequest("batch"))
			}
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			err := p.Shutdown(sctx)

			convey.Convey("Then they are drained before the pool stops", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(r.reasons(), convey.ShouldHaveLength, 5)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool size below one", t, func() {
		p := worker.NewPool(0, queue.NewInMemoryQueue(), newMockRefresher())

		convey.Convey("Then one worker is created", func() {
			convey.So(p.Size(), convey.ShouldEqual, 1)
		})
	})
}
