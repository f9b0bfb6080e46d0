package broadcast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"relaybot/internal/directory"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

type fakeDir struct {
	entries []directory.Entry
	err     error
}

func (d fakeDir) List(context.Context) ([]directory.Entry, error) { return d.entries, d.err }

type fakeDeliverer struct {
	mu     sync.Mutex
	fail   map[int64]error
	texts  map[int64]int
	photos map[int64]string
}

func newFakeDeliverer(fail map[int64]error) *fakeDeliverer {
	return &fakeDeliverer{fail: fail, texts: map[int64]int{}, photos: map[int64]string{}}
}

func (d *fakeDeliverer) SendText(_ context.Context, to kit.ChatTarget, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts[to.ChatID]++
	return kit.MessageRef{ChatID: to.ChatID}, d.fail[to.ChatID]
}

func (d *fakeDeliverer) SendPhoto(_ context.Context, to kit.ChatTarget, photoID, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.photos[to.ChatID] = photoID
	return kit.MessageRef{ChatID: to.ChatID}, d.fail[to.ChatID]
}

func entries(n int) []directory.Entry {
	out := make([]directory.Entry, n)
	for i := range out {
		out[i] = directory.Entry{UserID: int64(i + 1), ChatID: int64(i + 1)}
	}
	return out
}

func fastConfig() Config { return Config{Workers: 4, RatePerSec: 10000} }

func TestFanoutClassifiesOutcomes(t *testing.T) {
	fail := map[int64]error{
		2: &kit.DeliveryError{Kind: kit.FailureForbidden, Code: 403},
		3: &kit.DeliveryError{Kind: kit.FailureBadRequest, Code: 400},
		4: &kit.DeliveryError{Kind: kit.FailureRateLimited, Code: 429, RetryAfter: 3 * time.Second},
		5: errors.New("network down"),
		6: &kit.DeliveryError{Kind: kit.FailureForbidden, Code: 403},
	}
	out := newFakeDeliverer(fail)
	var limited int32
	var seen int32
	f := NewFanout(fastConfig(), fakeDir{entries: entries(7)}, out, logx.Nop(), Hooks{
		Outcome:     func(Outcome) { atomic.AddInt32(&seen, 1) },
		RateLimited: func(int64, time.Duration) { atomic.AddInt32(&limited, 1) },
	})

	rep, err := f.Run(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Total != 7 || rep.Successful != 2 || rep.Blocked != 2 || rep.Deleted != 1 || rep.Failed != 2 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if !rep.Consistent() {
		t.Fatalf("report not consistent: %+v", rep)
	}
	if limited != 1 {
		t.Fatalf("rate limited hook calls = %d", limited)
	}
	if seen != 7 {
		t.Fatalf("outcome hook calls = %d", seen)
	}
	for id := int64(1); id <= 7; id++ {
		if out.texts[id] != 1 {
			t.Fatalf("chat %d got %d attempts", id, out.texts[id])
		}
	}
}

func TestFanoutSumInvariant(t *testing.T) {
	for _, n := range []int{0, 1, 3, 50} {
		fail := map[int64]error{}
		for i := int64(1); i <= int64(n); i++ {
			switch i % 4 {
			case 1:
				fail[i] = &kit.DeliveryError{Kind: kit.FailureForbidden}
			case 2:
				fail[i] = &kit.DeliveryError{Kind: kit.FailureBadRequest}
			case 3:
				fail[i] = errors.New("x")
			}
		}
		f := NewFanout(fastConfig(), fakeDir{entries: entries(n)}, newFakeDeliverer(fail), logx.Nop(), Hooks{})
		rep, err := f.Run(context.Background(), "hi", "")
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if rep.Total != n || !rep.Consistent() {
			t.Fatalf("n=%d: report %+v", n, rep)
		}
	}
}

func TestFanoutWithImageSendsPhotos(t *testing.T) {
	out := newFakeDeliverer(nil)
	f := NewFanout(fastConfig(), fakeDir{entries: entries(3)}, out, logx.Nop(), Hooks{})
	rep, err := f.Run(context.Background(), "caption", "photo-1")
	if err != nil || rep.Successful != 3 || !rep.WithImage {
		t.Fatalf("Run = %+v, %v", rep, err)
	}
	if len(out.texts) != 0 || len(out.photos) != 3 || out.photos[2] != "photo-1" {
		t.Fatalf("unexpected deliveries texts=%v photos=%v", out.texts, out.photos)
	}
}

func TestFanoutListFailure(t *testing.T) {
	f := NewFanout(fastConfig(), fakeDir{err: directory.ErrClosed}, newFakeDeliverer(nil), logx.Nop(), Hooks{})
	if _, err := f.Run(context.Background(), "hi", ""); !errors.Is(err, directory.ErrClosed) {
		t.Fatalf("expected wrapped ErrClosed, got %v", err)
	}
}

type panicDeliverer struct{ fakeDeliverer }

func (*panicDeliverer) SendText(context.Context, kit.ChatTarget, string, *kit.SendOptions) (kit.MessageRef, error) {
	panic("transport bug")
}

func TestFanoutRecoversPanics(t *testing.T) {
	f := NewFanout(fastConfig(), fakeDir{entries: entries(2)}, &panicDeliverer{}, logx.Nop(), Hooks{})
	rep, err := f.Run(context.Background(), "hi", "")
	if err != nil || rep.Failed != 2 || !rep.Consistent() {
		t.Fatalf("Run = %+v, %v", rep, err)
	}
}

func TestReportHTML(t *testing.T) {
	got := Report{Total: 5, Successful: 2, Blocked: 1, Deleted: 1, Failed: 1}.HTML()
	for _, want := range []string{
		"<b><u>Broadcast Completed</u></b>",
		"Total Users: <code>5</code>",
		"Successful: <code>2</code>",
		"Blocked Users: <code>1</code>",
		"Deleted Accounts: <code>1</code>",
		"Unsuccessful: <code>1</code>",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("report missing %q:\n%s", want, got)
		}
	}
}
