package reqcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/whistle-data/refzone.report/internal/timeutil"
)

type flushEvent struct {
	key   Key
	value string
}

func newTestDebouncer(clock timeutil.Clock, quiet time.Duration) (*Debouncer[string], chan flushEvent) {
	ch := make(chan flushEvent, 32)
	d := NewDebouncer(clock, quiet, func(k Key, v string) {
		ch <- flushEvent{key: k, value: v}
	})
	return d, ch
}

func waitFlush(t *testing.T, ch chan flushEvent) flushEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
		return flushEvent{}
	}
}

func assertNoFlush(t *testing.T, ch chan flushEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected flush: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDebounceFlushesAfterQuietWindow(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	d, ch := newTestDebouncer(clock, 250*time.Millisecond)

	d.Trigger(testKey, "v1")
	assertNoFlush(t, ch)

	clock.Advance(250 * time.Millisecond)
	ev := waitFlush(t, ch)
	if ev.key != testKey || ev.value != "v1" {
		t.Errorf("flushed %+v", ev)
	}
	if d.Pending(testKey) {
		t.Error("key still pending after flush")
	}
}

// A burst of ten rapid triggers must produce exactly one flush, carrying
// the newest value of the burst.
func TestDebounceCoalescesBurst(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	d, ch := newTestDebouncer(clock, 250*time.Millisecond)

	for i := 1; i <= 10; i++ {
		d.Trigger(testKey, fmt.Sprintf("v%d", i))
		clock.Advance(10 * time.Millisecond)
	}

	clock.Advance(250 * time.Millisecond)
	ev := waitFlush(t, ch)
	if ev.value != "v10" {
		t.Errorf("flushed %q, want the newest value v10", ev.value)
	}
	assertNoFlush(t, ch)
}

func TestDebounceTriggerRestartsWindow(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	d, ch := newTestDebouncer(clock, 250*time.Millisecond)

	d.Trigger(testKey, "v1")
	clock.Advance(200 * time.Millisecond)
	d.Trigger(testKey, "v2")
	clock.Advance(200 * time.Millisecond)
	assertNoFlush(t, ch)

	clock.Advance(50 * time.Millisecond)
	if ev := waitFlush(t, ch); ev.value != "v2" {
		t.Errorf("flushed %q, want v2", ev.value)
	}
}

func TestDebounceKeysAreIndependent(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	d, ch := newTestDebouncer(clock, 250*time.Millisecond)

	other := testKey
	other.OfficialID = "R2"

	d.Trigger(testKey, "a")
	d.Trigger(other, "b")
	clock.Advance(250 * time.Millisecond)

	seen := map[string]string{}
	for i := 0; i < 2; i++ {
		ev := waitFlush(t, ch)
		seen[ev.key.OfficialID] = ev.value
	}
	if seen["R1"] != "a" || seen["R2"] != "b" {
		t.Errorf("flushes = %v", seen)
	}
}

func TestDebounceCancelDiscardsPending(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	d, ch := newTestDebouncer(clock, 250*time.Millisecond)

	d.Trigger(testKey, "v1")
	d.Cancel(testKey)
	if d.Pending(testKey) {
		t.Error("cancelled key still pending")
	}

	clock.Advance(time.Second)
	assertNoFlush(t, ch)
}

func TestDebounceRetriggerAfterCancel(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	d, ch := newTestDebouncer(clock, 250*time.Millisecond)

	d.Trigger(testKey, "old")
	d.Cancel(testKey)
	d.Trigger(testKey, "new")

	clock.Advance(250 * time.Millisecond)
	if ev := waitFlush(t, ch); ev.value != "new" {
		t.Errorf("flushed %q, want the post-cancel value", ev.value)
	}
	assertNoFlush(t, ch)
}

func TestDebounceDefaultQuietWindow(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	d, ch := newTestDebouncer(clock, 0)

	d.Trigger(testKey, "v")
	clock.Advance(DefaultQuietWindow)
	if ev := waitFlush(t, ch); ev.value != "v" {
		t.Errorf("flushed %q", ev.value)
	}
}
