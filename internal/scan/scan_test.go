package scan

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"sweepbox/internal/audit"
	"sweepbox/internal/config"
	"sweepbox/internal/model"
	"sweepbox/internal/session"
)

// fakeMailbox serves scripted listing pages and resolves every ID to a
// sender, optionally failing a chosen set of IDs.
type fakeMailbox struct {
	pages     [][]string // page i of IDs
	cursors   []string   // cursor returned with page i ("" = last)
	listErrAt int        // fail this page index (-1 = never)

	senderFor func(id string) string
	failIDs   map[string]bool

	listCalls  int32
	resolved   int32
	profileErr error
}

func (f *fakeMailbox) Profile(ctx context.Context) (string, error) {
	if f.profileErr != nil {
		return "", f.profileErr
	}
	return "user@example.com", nil
}

func (f *fakeMailbox) ListUnread(ctx context.Context, cursor string, pageSize int64) ([]string, string, error) {
	page := int(atomic.AddInt32(&f.listCalls, 1)) - 1
	if page == f.listErrAt {
		return nil, "", errors.New("listing blew up")
	}
	if page >= len(f.pages) {
		return nil, "", fmt.Errorf("unexpected page request %d", page)
	}
	return f.pages[page], f.cursors[page], nil
}

func (f *fakeMailbox) ResolveSenders(ctx context.Context, ids []string, deliver func(id, sender string)) error {
	for _, id := range ids {
		if f.failIDs[id] {
			continue // skipped item, batch proceeds
		}
		atomic.AddInt32(&f.resolved, 1)
		sender := id + "@senders.example.com"
		if f.senderFor != nil {
			sender = f.senderFor(id)
		}
		deliver(id, sender)
	}
	return nil
}

type recordedEvent struct {
	userHash string
	action   string
	count    int
}

type fakeSink struct {
	events []recordedEvent
}

func (f *fakeSink) Record(ctx context.Context, userHash, action string, count int) {
	f.events = append(f.events, recordedEvent{userHash, action, count})
}

func makeIDs(n int, prefix string) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	return ids
}

func testCfg() config.ScanConfig {
	return config.ScanConfig{MessageCap: 20000, PageSize: 500, BatchSize: 50, Concurrency: 4}
}

func TestRun_CollectsAllPagesAndStops(t *testing.T) {
	mb := &fakeMailbox{
		pages:     [][]string{makeIDs(500, "p0"), makeIDs(500, "p1"), makeIDs(10, "p2")},
		cursors:   []string{"c1", "c2", ""},
		listErrAt: -1,
	}
	o := NewOrchestrator(mb, testCfg(), nil, nil)
	sess := session.New(4, 1000)

	var last model.ScanProgress
	if err := o.Run(context.Background(), sess, func(p model.ScanProgress) { last = p }); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if mb.listCalls != 3 {
		t.Fatalf("list calls = %d, want 3 (no request past the cursorless page)", mb.listCalls)
	}
	if last.Total != 1010 || last.Done != 1010 {
		t.Fatalf("final progress = %d/%d, want 1010/1010", last.Done, last.Total)
	}
	if _, ok := sess.LastScanned(); !ok {
		t.Fatal("completed scan should stamp the session")
	}
}

func TestRun_HonorsMessageCap(t *testing.T) {
	cfg := testCfg()
	cfg.MessageCap = 120
	mb := &fakeMailbox{
		pages:     [][]string{makeIDs(100, "p0"), makeIDs(100, "p1"), makeIDs(100, "p2")},
		cursors:   []string{"c1", "c2", ""},
		listErrAt: -1,
	}
	o := NewOrchestrator(mb, cfg, nil, nil)
	sess := session.New(4, 1000)

	var last model.ScanProgress
	if err := o.Run(context.Background(), sess, func(p model.ScanProgress) { last = p }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mb.listCalls != 2 {
		t.Fatalf("list calls = %d, want 2 (cap reached after second page)", mb.listCalls)
	}
	if last.Total != 120 {
		t.Fatalf("total = %d, want 120 (truncated to cap)", last.Total)
	}
	if mb.resolved != 120 {
		t.Fatalf("resolved = %d, want 120", mb.resolved)
	}
}

func TestRun_SkippedItemsStillAdvanceProgress(t *testing.T) {
	ids := makeIDs(50, "m")
	failed := map[string]bool{"m-3": true, "m-17": true, "m-42": true}
	mb := &fakeMailbox{
		pages:     [][]string{ids},
		cursors:   []string{""},
		listErrAt: -1,
		failIDs:   failed,
	}
	o := NewOrchestrator(mb, testCfg(), nil, nil)
	sess := session.New(4, 1000)

	var progress []model.ScanProgress
	if err := o.Run(context.Background(), sess, func(p model.ScanProgress) { progress = append(progress, p) }); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if mb.resolved != 47 {
		t.Fatalf("resolved = %d, want 47 (3 skipped)", mb.resolved)
	}
	if len(sess.Entries()) != 47 {
		t.Fatalf("leaderboard entries = %d, want 47", len(sess.Entries()))
	}
	if len(progress) != 1 || progress[0].Done != 50 || progress[0].Total != 50 {
		t.Fatalf("progress = %+v, want one report of 50/50", progress)
	}
}

func TestRun_ProgressMonotoneAndBatchAligned(t *testing.T) {
	mb := &fakeMailbox{
		pages:     [][]string{makeIDs(130, "m")},
		cursors:   []string{""},
		listErrAt: -1,
	}
	o := NewOrchestrator(mb, testCfg(), nil, nil)
	sess := session.New(4, 1000)

	var seen []model.ScanProgress
	if err := o.Run(context.Background(), sess, func(p model.ScanProgress) { seen = append(seen, p) }); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []int{50, 100, 130}
	if len(seen) != len(want) {
		t.Fatalf("progress reports = %d, want %d", len(seen), len(want))
	}
	for i, p := range seen {
		if p.Done != want[i] || p.Total != 130 {
			t.Fatalf("report %d = %d/%d, want %d/130", i, p.Done, p.Total, want[i])
		}
	}
	if f := seen[len(seen)-1].Fraction(); f != 1.0 {
		t.Fatalf("final fraction = %v, want 1.0", f)
	}
}

func TestRun_ListingFailureIsFatal(t *testing.T) {
	mb := &fakeMailbox{
		pages:     [][]string{makeIDs(500, "p0")},
		cursors:   []string{"c1"},
		listErrAt: 1,
	}
	o := NewOrchestrator(mb, testCfg(), nil, nil)
	sess := session.New(4, 1000)

	if err := o.Run(context.Background(), sess, nil); err == nil {
		t.Fatal("Run should fail when a listing page fails")
	}
	if _, ok := sess.LastScanned(); ok {
		t.Fatal("failed scan must not stamp the session")
	}
	// The claim must be released so a retry can run.
	if err := sess.BeginScan(); err != nil {
		t.Fatalf("session still claimed after failed scan: %v", err)
	}
}

func TestRun_RejectsConcurrentScan(t *testing.T) {
	mb := &fakeMailbox{pages: [][]string{nil}, cursors: []string{""}, listErrAt: -1}
	o := NewOrchestrator(mb, testCfg(), nil, nil)
	sess := session.New(4, 1000)

	if err := sess.BeginScan(); err != nil {
		t.Fatalf("BeginScan: %v", err)
	}
	if err := o.Run(context.Background(), sess, nil); !errors.Is(err, session.ErrScanInProgress) {
		t.Fatalf("Run = %v, want ErrScanInProgress", err)
	}
}

func TestRun_CancelledBetweenBatches(t *testing.T) {
	mb := &fakeMailbox{
		pages:     [][]string{makeIDs(100, "m")},
		cursors:   []string{""},
		listErrAt: -1,
	}
	o := NewOrchestrator(mb, testCfg(), nil, nil)
	sess := session.New(4, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	err := o.Run(ctx, sess, func(p model.ScanProgress) {
		cancel() // cancel after the first batch completes
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if mb.resolved != 50 {
		t.Fatalf("resolved = %d, want 50 (second batch never dispatched)", mb.resolved)
	}
}

func TestRun_RecordsScanEventWithUserHash(t *testing.T) {
	mb := &fakeMailbox{pages: [][]string{makeIDs(10, "m")}, cursors: []string{""}, listErrAt: -1}
	sink := &fakeSink{}
	o := NewOrchestrator(mb, testCfg(), nil, sink)
	sess := session.New(4, 1000)

	if err := o.Run(context.Background(), sess, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(sink.events))
	}
	ev := sink.events[0]
	if ev.action != audit.ActionScan || ev.count != 1 {
		t.Fatalf("event = %+v", ev)
	}
	if ev.userHash != UserHash("user@example.com") {
		t.Fatalf("userHash = %q, want hash of profile email", ev.userHash)
	}
	if ev.userHash == "user@example.com" {
		t.Fatal("audit rows must not carry the raw address")
	}
}

func TestRun_ProfileFailureIsFatal(t *testing.T) {
	mb := &fakeMailbox{profileErr: errors.New("auth expired")}
	o := NewOrchestrator(mb, testCfg(), nil, nil)
	sess := session.New(4, 1000)

	if err := o.Run(context.Background(), sess, nil); err == nil {
		t.Fatal("Run should fail when the profile call fails")
	}
}

func TestUserHash_StableHex(t *testing.T) {
	a := UserHash("user@example.com")
	b := UserHash("user@example.com")
	if a != b {
		t.Fatal("hash not deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(a))
	}
	if a == UserHash("other@example.com") {
		t.Fatal("distinct emails should not collide")
	}
}
