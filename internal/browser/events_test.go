package browser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSubscribers_DispatchAndUnsubscribe(t *testing.T) {
	var s subscribers
	if !s.empty() {
		t.Fatal("new subscribers should be empty")
	}

	got := make(chan string, 4)
	unsubscribe := s.add(func(r Response) { got <- r.URL })
	if s.empty() {
		t.Fatal("expected one subscriber")
	}

	s.dispatch(Response{URL: "https://example.com/a"})
	select {
	case u := <-got:
		if u != "https://example.com/a" {
			t.Errorf("got %q", u)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not called")
	}

	unsubscribe()
	unsubscribe()
	if !s.empty() {
		t.Fatal("unsubscribe should remove the handler")
	}

	s.dispatch(Response{URL: "https://example.com/b"})
	select {
	case u := <-got:
		t.Errorf("handler called after unsubscribe with %q", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribers_ConcurrentAdd(t *testing.T) {
	var s subscribers
	var wg sync.WaitGroup
	unsubs := make([]func(), 20)
	for i := range unsubs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unsubs[i] = s.add(func(Response) {})
		}(i)
	}
	wg.Wait()

	for _, u := range unsubs {
		u()
	}
	if !s.empty() {
		t.Error("expected all handlers removed")
	}
}

func TestRequestTracker(t *testing.T) {
	tr := newRequestTracker[string](0)

	tr.request("1", "POST")
	tr.response("1", "https://example.com/api", 200)

	r, ok := tr.finish("1")
	if !ok {
		t.Fatal("expected tracked response")
	}
	if r.url != "https://example.com/api" || r.status != 200 || r.method != "POST" {
		t.Errorf("unexpected response %+v", r)
	}

	if _, ok := tr.finish("1"); ok {
		t.Error("finish should remove the entry")
	}

	// A request that failed before any response was received.
	tr.request("2", "GET")
	if _, ok := tr.finish("2"); ok {
		t.Error("request without response should not be reported")
	}
	if n := tr.len(); n != 0 {
		t.Errorf("tracker leaked %d entries", n)
	}
}

func TestRequestTracker_Limit(t *testing.T) {
	tr := newRequestTracker[int](3)

	// Requests that never finish, e.g. long polls.
	for id := 0; id < 10; id++ {
		tr.request(id, "GET")
	}
	if n := tr.len(); n != 3 {
		t.Fatalf("expected tracker capped at 3, got %d", n)
	}

	// The newest requests survive eviction.
	tr.response(9, "https://example.com/9", 200)
	r, ok := tr.finish(9)
	if !ok || r.url != "https://example.com/9" || r.method != "GET" {
		t.Errorf("finish(9) = %+v, %v", r, ok)
	}
	if _, ok := tr.finish(0); ok {
		t.Error("oldest request should have been evicted")
	}

	// Touching an existing id does not evict anything.
	tr.response(8, "https://example.com/8", 200)
	if n := tr.len(); n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
}

func TestRequestTracker_Reset(t *testing.T) {
	tr := newRequestTracker[string](0)
	tr.request("1", "GET")
	tr.response("2", "https://example.com/2", 200)

	tr.reset()

	if n := tr.len(); n != 0 {
		t.Errorf("expected empty tracker after reset, got %d", n)
	}
	if _, ok := tr.finish("2"); ok {
		t.Error("reset should drop pending responses")
	}
}

func TestResponse_Body(t *testing.T) {
	r := NewResponse("u", 200, "GET", func(context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	body, err := r.Body(context.Background())
	if err != nil || string(body) != "ok" {
		t.Errorf("Body() = %q, %v", body, err)
	}

	var empty Response
	if _, err := empty.Body(context.Background()); !errors.Is(err, ErrNoBody) {
		t.Errorf("expected ErrNoBody, got %v", err)
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "firefox"})
	if !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("expected ErrUnknownDriver, got %v", err)
	}
}
