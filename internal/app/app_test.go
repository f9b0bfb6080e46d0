package app

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"relaybot/internal/config"
	kit "relaybot/internal/transport"
)

type fakeTransport struct {
	mu        sync.Mutex
	docs      []kit.Document
	docChats  []int64
	texts     map[int64][]string
	started   bool
	stopped   bool
	webhook   string
	deletedWH int
}

func (f *fakeTransport) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.texts == nil {
		f.texts = map[int64][]string{}
	}
	f.texts[to.ChatID] = append(f.texts[to.ChatID], text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeTransport) SendPhoto(_ context.Context, to kit.ChatTarget, _, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeTransport) SendDocument(_ context.Context, to kit.ChatTarget, doc kit.Document) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	f.docChats = append(f.docChats, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeTransport) Forward(_ context.Context, to kit.ChatTarget, _ kit.MessageRef) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeTransport) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeTransport) Start(context.Context, chan<- kit.Update) error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Stop(context.Context) error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) OnUnsupported(func(error)) {}

func (f *fakeTransport) SetWebhook(publicURL, _ string, _ bool) error {
	f.mu.Lock()
	f.webhook = publicURL
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) DeleteWebhook(bool) error {
	f.mu.Lock()
	f.deletedWH++
	f.mu.Unlock()
	return nil
}

func newTestApp(t *testing.T, extra map[string]string) (*App, *fakeTransport) {
	t.Helper()
	vars := map[string]string{
		"TOKEN":                     "123:abc",
		"OWNER_ID":                  "1000",
		"RELAYBOT_MODE":             "polling",
		"RELAYBOT_LISTEN":           "127.0.0.1:0",
		"RELAYBOT_LOG_LEVEL":        "error",
		"RELAYBOT_DIRECTORY_DRIVER": "memory",
		"RELAYBOT_BOT_USERNAME":     "relay_bot",
	}
	for k, v := range extra {
		vars[k] = v
	}
	m := config.NewManager("")
	m.SetEnv(func(k string) (string, bool) { v, ok := vars[k]; return v, ok })
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tr := &fakeTransport{}
	a, err := build(m, cfg, tr)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return a, tr
}

func TestSendExportDeliversToOwner(t *testing.T) {
	a, tr := newTestApp(t, nil)
	defer a.dir.Close()
	ctx := context.Background()
	for _, id := range []int64{3, 1, 2} {
		if err := a.dir.Upsert(ctx, id, id); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if err := a.sendExport(ctx, 1000, "caption"); err != nil {
		t.Fatalf("sendExport: %v", err)
	}
	if len(tr.docs) != 1 || tr.docChats[0] != 1000 || tr.docs[0].Caption != "caption" {
		t.Fatalf("docs = %+v chats = %v", tr.docs, tr.docChats)
	}
	var doc struct {
		Count int `json:"count"`
		Users []struct {
			UserID int64 `json:"user_id"`
		} `json:"users"`
	}
	if err := json.Unmarshal(tr.docs[0].Data, &doc); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if doc.Count != 3 || doc.Users[0].UserID != 1 || doc.Users[2].UserID != 3 {
		t.Fatalf("doc = %+v", doc)
	}
}

func TestUsersGauge(t *testing.T) {
	a, _ := newTestApp(t, nil)
	defer a.dir.Close()
	ctx := context.Background()
	_ = a.dir.Upsert(ctx, 5, 5)
	_ = a.dir.Upsert(ctx, 6, 6)
	if err := a.refreshUsersGauge(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := a.health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	want := `
# HELP relaybot_directory_users Users currently known to the directory.
# TYPE relaybot_directory_users gauge
relaybot_directory_users 2
`
	if err := testutil.GatherAndCompare(prometheus.DefaultGatherer, strings.NewReader(want), "relaybot_directory_users"); err != nil {
		t.Fatal(err)
	}
}

func TestApplyConfigTogglesScheduledExport(t *testing.T) {
	a, _ := newTestApp(t, nil)
	defer a.dir.Close()
	prev := a.cfgm.Get()
	if hasJob(a, jobExport) || !hasJob(a, jobUsersGauge) {
		t.Fatalf("unexpected jobs: %+v", a.sched.Entries())
	}

	next := *prev
	next.Export.Schedule = "0 9 * * *"
	a.applyConfig(prev, &next)
	if !hasJob(a, jobExport) {
		t.Fatalf("export job not added: %+v", a.sched.Entries())
	}

	off := next
	off.Export.Schedule = ""
	a.applyConfig(&next, &off)
	if hasJob(a, jobExport) {
		t.Fatalf("export job not removed")
	}
}

func TestStartStopPolling(t *testing.T) {
	a, tr := newTestApp(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if !tr.started || !tr.stopped || tr.deletedWH != 1 || tr.webhook != "" {
		t.Fatalf("transport = %+v", tr)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestStartWebhookRegistersURL(t *testing.T) {
	a, tr := newTestApp(t, map[string]string{
		"RELAYBOT_MODE": "webhook",
		"WEBHOOK_URL":   "https://bot.example.com/hook",
	})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	_ = a.Stop(stopCtx, StopSignal)
	if tr.webhook != "https://bot.example.com/hook" || tr.started {
		t.Fatalf("webhook = %q started = %v", tr.webhook, tr.started)
	}
}

func TestSDNotifierWithoutSystemd(t *testing.T) {
	a, _ := newTestApp(t, nil)
	defer a.dir.Close()
	var states []string
	a.sd.notify = func(state string) (bool, error) { states = append(states, state); return false, nil }
	a.sd.watchdogInterval = func() (time.Duration, error) { return 0, nil }
	a.sd.ready()
	a.sd.stopping()
	a.sd.watchdog(context.Background()) // returns immediately when disabled
	if len(states) != 2 || states[0] != "READY=1" || states[1] != "STOPPING=1" {
		t.Fatalf("states = %v", states)
	}
}

func hasJob(a *App, name string) bool {
	for _, e := range a.sched.Entries() {
		if e.Name == name {
			return true
		}
	}
	return false
}

func TestStopDeliversStoppingNotice(t *testing.T) {
	a, tr := newTestApp(t, map[string]string{"CONSOLE_CHANNEL_ID": "-100"})
	run, cancel := context.WithCancel(context.Background())
	if err := a.Start(run); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// The serve command cancels the run context on SIGTERM before Stop.
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, StopSignal)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	found := false
	for _, text := range tr.texts[-100] {
		if strings.Contains(text, "Bot stopping (signal)") {
			found = true
		}
	}
	if !found {
		t.Fatalf("console texts = %q", tr.texts[-100])
	}
}
