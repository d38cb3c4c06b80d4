package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/domain"
)

// MockEmitter for testing
type MockEmitter struct {
	Emitted []domain.SyncNotification
	Err     error
	Closed  bool
}

func (m *MockEmitter) Emit(ctx context.Context, n domain.SyncNotification) error {
	if m.Err != nil {
		return m.Err
	}
	m.Emitted = append(m.Emitted, n)
	return nil
}

func (m *MockEmitter) Close() error {
	m.Closed = true
	return nil
}

func at(ts uint64) domain.Checkpoint {
	return domain.Checkpoint{BlockTimestamp: ts, ChainID: 1, BlockNumber: ts}
}

func newEvents(from, to uint64) domain.NewEventsNotification {
	return domain.NewEventsNotification{From: at(from), To: at(to)}
}

func TestFinalityBuffer_HoldsUntilFinalized(t *testing.T) {
	mock := &MockEmitter{}
	buffer := NewFinalityBuffer(mock)
	ctx := context.Background()

	buffer.Emit(ctx, newEvents(10, 20))
	buffer.Emit(ctx, newEvents(20, 30))
	buffer.Emit(ctx, newEvents(30, 40))

	if len(mock.Emitted) != 0 {
		t.Fatalf("expected nothing emitted before finalize, got %d", len(mock.Emitted))
	}

	if err := buffer.Emit(ctx, domain.FinalizeNotification{Checkpoint: at(30)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []domain.SyncNotification{
		newEvents(10, 20),
		newEvents(20, 30),
		domain.FinalizeNotification{Checkpoint: at(30)},
	}
	if len(mock.Emitted) != len(want) {
		t.Fatalf("expected %d notifications, got %d", len(want), len(mock.Emitted))
	}
	for i := range want {
		if mock.Emitted[i] != want[i] {
			t.Errorf("notification %d: expected %+v, got %+v", i, want[i], mock.Emitted[i])
		}
	}
	if pending := buffer.Pending(); len(pending) != 1 || pending[0].From != at(30) {
		t.Errorf("expected [30,40) pending, got %+v", pending)
	}
}

func TestFinalityBuffer_SplitsStraddlingRange(t *testing.T) {
	mock := &MockEmitter{}
	buffer := NewFinalityBuffer(mock)
	ctx := context.Background()

	buffer.Emit(ctx, newEvents(10, 40))
	buffer.Emit(ctx, domain.FinalizeNotification{Checkpoint: at(25)})

	if len(mock.Emitted) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(mock.Emitted))
	}
	if mock.Emitted[0] != newEvents(10, 25) {
		t.Errorf("expected [10,25), got %+v", mock.Emitted[0])
	}
	pending := buffer.Pending()
	if len(pending) != 1 || pending[0] != (domain.CheckpointRange{From: at(25), To: at(40)}) {
		t.Errorf("expected [25,40) pending, got %+v", pending)
	}
}

func TestFinalityBuffer_ReorgDiscardsInvalidRanges(t *testing.T) {
	mock := &MockEmitter{}
	buffer := NewFinalityBuffer(mock)
	ctx := context.Background()

	buffer.Emit(ctx, newEvents(10, 20))
	buffer.Emit(ctx, newEvents(20, 30))
	buffer.Emit(ctx, newEvents(30, 40))

	buffer.Emit(ctx, domain.ReorgEvent{ChainID: 1, SafeCheckpoint: at(25)})

	pending := buffer.Pending()
	want := []domain.CheckpointRange{
		{From: at(10), To: at(20)},
		{From: at(20), To: at(25)},
	}
	if len(pending) != len(want) {
		t.Fatalf("expected %d pending, got %+v", len(want), pending)
	}
	for i := range want {
		if pending[i] != want[i] {
			t.Errorf("pending %d: expected %+v, got %+v", i, want[i], pending[i])
		}
	}
	if len(mock.Emitted) != 0 {
		t.Errorf("reorg must not be forwarded, got %d notifications", len(mock.Emitted))
	}

	buffer.Emit(ctx, domain.ReorgEvent{ChainID: 1, SafeCheckpoint: at(5)})
	if len(buffer.Pending()) != 0 {
		t.Errorf("expected all ranges dropped, got %+v", buffer.Pending())
	}
}

func TestFinalityBuffer_PropagatesErrors(t *testing.T) {
	mock := &MockEmitter{Err: errors.New("broker down")}
	buffer := NewFinalityBuffer(mock)
	ctx := context.Background()

	buffer.Emit(ctx, newEvents(10, 20))
	if err := buffer.Emit(ctx, domain.FinalizeNotification{Checkpoint: at(20)}); err == nil {
		t.Fatal("expected error")
	}
	if err := buffer.Close(); err != nil || !mock.Closed {
		t.Errorf("expected inner emitter closed, err=%v", err)
	}
}

type fakePublisher struct {
	stream string
	maxLen int64
	values map[string]any
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, stream string, maxLen int64, values map[string]any) (string, error) {
	p.stream, p.maxLen, p.values = stream, maxLen, values
	return "1-0", p.err
}

func TestStreamEmitter(t *testing.T) {
	pub := &fakePublisher{}
	e := NewStreamEmitter(pub, "chainsync:events", 1000)
	ctx := context.Background()

	n := newEvents(10, 20)
	if err := e.Emit(ctx, n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.stream != "chainsync:events" || pub.maxLen != 1000 {
		t.Errorf("unexpected stream %s maxlen %d", pub.stream, pub.maxLen)
	}
	if pub.values["type"] != "new_events" {
		t.Errorf("expected new_events, got %v", pub.values["type"])
	}
	if pub.values["from"] != checkpoint.Encode(at(10)) || pub.values["to"] != checkpoint.Encode(at(20)) {
		t.Errorf("unexpected range %v %v", pub.values["from"], pub.values["to"])
	}
	if _, err := uuid.Parse(pub.values["id"].(string)); err != nil {
		t.Errorf("expected uuid id: %v", err)
	}

	var decoded domain.NewEventsNotification
	if err := json.Unmarshal([]byte(pub.values["payload"].(string)), &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded != n {
		t.Errorf("expected payload %+v, got %+v", n, decoded)
	}

	if err := e.Emit(ctx, domain.ReorgEvent{ChainID: 2, SafeCheckpoint: at(5)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.values["type"] != "reorg" || pub.values["chain_id"] != uint64(2) {
		t.Errorf("unexpected reorg values %v", pub.values)
	}

	pub.err = errors.New("NOAUTH")
	if err := e.Emit(ctx, domain.FinalizeNotification{Checkpoint: at(5)}); err == nil {
		t.Error("expected publish error")
	}
}

func TestMulti(t *testing.T) {
	ok := &MockEmitter{}
	failing := &MockEmitter{Err: errors.New("down")}
	m := Multi{NewLogEmitter(slog.New(slog.NewTextHandler(io.Discard, nil))), failing, ok}

	err := m.Emit(context.Background(), newEvents(1, 2))
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(ok.Emitted) != 1 {
		t.Errorf("expected later emitters to still receive, got %d", len(ok.Emitted))
	}
	if err := m.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}

func TestKind(t *testing.T) {
	tests := map[string]domain.SyncNotification{
		"new_events": newEvents(1, 2),
		"reorg":      domain.ReorgEvent{},
		"finalize":   domain.FinalizeNotification{},
	}
	for want, n := range tests {
		if got := Kind(n); got != want {
			t.Errorf("Kind(%T) = %s, want %s", n, got, want)
		}
	}
}
