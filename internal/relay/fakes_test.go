package relay

import (
	"context"
	"strconv"
	"sync"
	"time"

	"relaybot/internal/broadcast"
	"relaybot/internal/directory"
	"relaybot/internal/reply"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

const ownerID = 1000

type call struct {
	op    string // text, photo, document, forward, answer
	chat  int64
	text  string
	photo string
	doc   kit.Document
	opt   *kit.SendOptions
}

type fakeOut struct {
	mu      sync.Mutex
	calls   []call
	failFor map[int64]error
	panicOn string
}

func (f *fakeOut) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn != "" && f.panicOn == c.op {
		panic("transport exploded")
	}
	f.calls = append(f.calls, c)
	return f.failFor[c.chat]
}

func (f *fakeOut) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: to.ChatID}, f.record(call{op: "text", chat: to.ChatID, text: text, opt: opt})
}

func (f *fakeOut) SendPhoto(_ context.Context, to kit.ChatTarget, photoID, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: to.ChatID}, f.record(call{op: "photo", chat: to.ChatID, photo: photoID, text: caption, opt: opt})
}

func (f *fakeOut) SendDocument(_ context.Context, to kit.ChatTarget, doc kit.Document) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: to.ChatID}, f.record(call{op: "document", chat: to.ChatID, doc: doc})
}

func (f *fakeOut) Forward(_ context.Context, to kit.ChatTarget, from kit.MessageRef) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: to.ChatID}, f.record(call{op: "forward", chat: to.ChatID, text: strconv.FormatInt(from.ChatID, 10)})
}

func (f *fakeOut) AnswerCallback(_ context.Context, id string, _ string) error {
	return f.record(call{op: "answer", text: id})
}

func (f *fakeOut) to(chat int64) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.chat == chat && c.op != "answer" {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeOut) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

type countingDir struct {
	directory.Store
	mu      sync.Mutex
	upserts int
}

func (d *countingDir) Upsert(ctx context.Context, userID, chatID int64) error {
	d.mu.Lock()
	d.upserts++
	d.mu.Unlock()
	return d.Store.Upsert(ctx, userID, chatID)
}

type run struct {
	body, photo string
}

type fakeFanout struct {
	mu   sync.Mutex
	runs []run
	err  error
	gate chan struct{}
}

func (f *fakeFanout) Run(_ context.Context, body, photoID string) (broadcast.Report, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.runs = append(f.runs, run{body, photoID})
	f.mu.Unlock()
	if f.err != nil {
		return broadcast.Report{}, f.err
	}
	return broadcast.Report{Total: 3, Successful: 2, Blocked: 1, WithImage: photoID != "", Took: time.Millisecond}, nil
}

func (f *fakeFanout) snapshot() []run {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]run(nil), f.runs...)
}

type notices struct {
	mu          sync.Mutex
	seen        []int64
	rateLimited []time.Duration
	apiErrors   int
}

func (n *notices) UserSeen(_ string, id int64) {
	n.mu.Lock()
	n.seen = append(n.seen, id)
	n.mu.Unlock()
}

func (n *notices) RateLimited(_ string, d time.Duration) {
	n.mu.Lock()
	n.rateLimited = append(n.rateLimited, d)
	n.mu.Unlock()
}

func (n *notices) APIError(string, error) {
	n.mu.Lock()
	n.apiErrors++
	n.mu.Unlock()
}

type harness struct {
	r     *Router
	out   *fakeOut
	dir   *countingDir
	fan   *fakeFanout
	coord *broadcast.Coordinator
	notes *notices
}

func newHarness() *harness {
	h := &harness{
		out:   &fakeOut{failFor: map[int64]error{}},
		dir:   &countingDir{Store: directory.NewMemory()},
		fan:   &fakeFanout{},
		coord: broadcast.NewCoordinator(),
		notes: &notices{},
	}
	h.r = New(Config{OwnerID: ownerID, BotUsername: "relay_bot", HandlerTimeout: 5 * time.Second}, Deps{
		Out:         h.out,
		Directory:   h.dir,
		Coordinator: h.coord,
		Broadcaster: h.fan,
		Replier:     reply.New(h.out, reply.DefaultTexts(), logx.Nop()),
		Notices:     h.notes,
	}, logx.Nop())
	return h
}

func text(from int64, first, body string) kit.Update {
	return kit.Update{Kind: kit.UpdateText, Message: &kit.Message{ID: 7, ChatID: from, FromID: from, FromFirstName: first, Text: body}}
}

func photo(from int64, fileID, caption string) kit.Update {
	return kit.Update{Kind: kit.UpdatePhoto, Message: &kit.Message{ID: 8, ChatID: from, FromID: from, PhotoID: fileID, Text: caption}}
}

func media(from int64, kind string) kit.Update {
	return kit.Update{Kind: kit.UpdateMedia, Message: &kit.Message{ID: 9, ChatID: from, FromID: from, MediaKind: kind}}
}

func cb(from int64, data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb-" + data, FromID: from, ChatID: from, MessageID: 3, Data: data}}
}
