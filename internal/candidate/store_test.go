package candidate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nao1215/streamscout/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestStoreInsert tests idempotent insertion.
func TestStoreInsert(t *testing.T) {
	t.Parallel()

	t.Run("keeps first channel and timestamp on duplicates", func(t *testing.T) {
		t.Parallel()

		s := NewStore()
		first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		if !s.Insert(model.Signal{URL: "https://x/a.m3u8", Channel: model.ChannelTimingScan, ObservedAt: first}) {
			t.Fatal("expected first insert to report a new URL")
		}
		if s.Insert(model.Signal{URL: "https://x/a.m3u8", Channel: model.ChannelRequestTap, ObservedAt: first.Add(time.Second)}) {
			t.Error("expected duplicate insert to report no new URL")
		}

		snap := s.Snapshot()
		if len(snap) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(snap))
		}
		if snap[0].FirstChannel != model.ChannelTimingScan {
			t.Errorf("expected first channel to be kept, got %v", snap[0].FirstChannel)
		}
		if !snap[0].FirstSeenAt.Equal(first) {
			t.Errorf("expected first timestamp to be kept, got %v", snap[0].FirstSeenAt)
		}
		if snap[0].Observations != 2 {
			t.Errorf("expected 2 observations, got %d", snap[0].Observations)
		}
	})

	t.Run("ignores empty URL", func(t *testing.T) {
		t.Parallel()

		s := NewStore()
		if s.Insert(model.Signal{}) {
			t.Error("expected empty URL to be ignored")
		}
		if s.Len() != 0 {
			t.Errorf("expected empty store, got %d", s.Len())
		}
	})

	t.Run("preserves first observation order", func(t *testing.T) {
		t.Parallel()

		s := NewStore()
		for _, u := range []string{"c", "a", "b", "a", "c"} {
			s.Insert(model.NewSignal(u, model.ChannelDomScan))
		}

		snap := s.Snapshot()
		want := []string{"c", "a", "b"}
		if len(snap) != len(want) {
			t.Fatalf("expected %d candidates, got %d", len(want), len(snap))
		}
		for i, w := range want {
			if snap[i].URL != w || snap[i].Sequence != i {
				t.Errorf("position %d: got %q (seq %d), want %q", i, snap[i].URL, snap[i].Sequence, w)
			}
		}
	})

	t.Run("exact string match defines identity", func(t *testing.T) {
		t.Parallel()

		s := NewStore()
		s.Insert(model.NewSignal("https://x/a.m3u8", model.ChannelDomScan))
		s.Insert(model.NewSignal("https://x/a.m3u8?", model.ChannelDomScan))
		if s.Len() != 2 {
			t.Errorf("expected 2 distinct candidates, got %d", s.Len())
		}
	})
}

// TestStoreConcurrentInsert tests that concurrent producers never create duplicates.
func TestStoreConcurrentInsert(t *testing.T) {
	t.Parallel()

	s := NewStore()
	channels := model.AllChannels()

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch model.Channel) {
			defer wg.Done()
			for i := range 200 {
				s.Insert(model.NewSignal(fmt.Sprintf("https://cdn/%d.m3u8", i%50), ch))
			}
		}(ch)
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Fatalf("expected 50 unique candidates, got %d", s.Len())
	}

	total := 0
	for _, c := range s.Snapshot() {
		total += c.Observations
	}
	if total != 200*len(channels) {
		t.Errorf("expected %d observations, got %d", 200*len(channels), total)
	}
}

// TestStoreConsume tests draining a signal channel into the store.
func TestStoreConsume(t *testing.T) {
	t.Parallel()

	t.Run("stops when the channel closes", func(t *testing.T) {
		t.Parallel()

		s := NewStore()
		ch := make(chan model.Signal, 3)
		ch <- model.NewSignal("https://x/a.m3u8", model.ChannelRequestTap)
		ch <- model.NewSignal("https://x/a.m3u8", model.ChannelResponseTap)
		ch <- model.NewSignal("https://x/b.m3u8", model.ChannelRequestTap)
		close(ch)

		var fresh []string
		s.Consume(context.Background(), ch, func(sig model.Signal) {
			fresh = append(fresh, sig.URL)
		})

		if len(fresh) != 2 {
			t.Errorf("expected 2 new URLs, got %v", fresh)
		}
		snap := s.Snapshot()
		if len(snap) != 2 || snap[1].URL != "https://x/b.m3u8" {
			t.Errorf("expected b.m3u8 to be stored second, got %+v", snap)
		}
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		t.Parallel()

		s := NewStore()
		ch := make(chan model.Signal)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			s.Consume(ctx, ch, nil)
			close(done)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Consume did not return after cancellation")
		}
	})
}
