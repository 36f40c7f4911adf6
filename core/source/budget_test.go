package source

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gridkey/horizon/core/model"
)

type budgetClient struct {
	desc     Descriptor
	inflight int32
	peak     int32
	starts   []time.Time
	mu       sync.Mutex
}

func (c *budgetClient) Descriptor() Descriptor { return c.desc }

func (c *budgetClient) Fetch(_ context.Context, feed model.FeedName, w model.Window) (model.TimeSeries, error) {
	cur := atomic.AddInt32(&c.inflight, 1)
	defer atomic.AddInt32(&c.inflight, -1)
	for {
		p := atomic.LoadInt32(&c.peak)
		if cur <= p || atomic.CompareAndSwapInt32(&c.peak, p, cur) {
			break
		}
	}
	c.mu.Lock()
	c.starts = append(c.starts, time.Now())
	c.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	return model.TimeSeries{Feed: feed}, nil
}

func TestLimitedConcurrency(t *testing.T) {
	inner := &budgetClient{desc: Descriptor{Name: "b", Budget: Budget{MaxConcurrent: 2}}}
	c := Limited(inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Fetch(context.Background(), model.FeedDayAhead, model.Window{})
		}()
	}
	wg.Wait()

	if peak := atomic.LoadInt32(&inner.peak); peak > 2 {
		t.Fatalf("peak concurrency = %d, want at most 2", peak)
	}
}

func TestLimitedCallSpacing(t *testing.T) {
	inner := &budgetClient{desc: Descriptor{Name: "b", Budget: Budget{MinCallInterval: 30 * time.Millisecond}}}
	c := Limited(inner)

	for i := 0; i < 3; i++ {
		if _, err := c.Fetch(context.Background(), model.FeedDayAhead, model.Window{}); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	inner.mu.Lock()
	defer inner.mu.Unlock()
	for i := 1; i < len(inner.starts); i++ {
		if gap := inner.starts[i].Sub(inner.starts[i-1]); gap < 25*time.Millisecond {
			t.Fatalf("calls %d and %d only %s apart", i-1, i, gap)
		}
	}
}

func TestLimitedZeroBudgetPassthrough(t *testing.T) {
	inner := &budgetClient{desc: Descriptor{Name: "b"}}
	if c := Limited(inner); c != Client(inner) {
		t.Fatalf("zero budget must pass the client through unwrapped")
	}
}

func TestLimitedCancelledContext(t *testing.T) {
	inner := &budgetClient{desc: Descriptor{Name: "b", Budget: Budget{MinCallInterval: time.Hour}}}
	c := Limited(inner)

	// First call consumes the burst token; the second must block and then
	// give up when the context is cancelled.
	c.Fetch(context.Background(), model.FeedDayAhead, model.Window{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Fetch(ctx, model.FeedDayAhead, model.Window{})
	if err == nil {
		t.Fatalf("rate-limited fetch did not respect cancellation")
	}
}

func TestDescriptorSupports(t *testing.T) {
	d := Descriptor{Feeds: []model.FeedName{model.FeedDayAhead, model.FeedFCR}}
	if !d.Supports(model.FeedFCR) {
		t.Fatalf("declared feed not supported")
	}
	if d.Supports(model.FeedWindSpeed) {
		t.Fatalf("undeclared feed supported")
	}
}
