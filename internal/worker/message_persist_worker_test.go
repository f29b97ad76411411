package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"ragdesk/internal/model"
)

type fakeStore struct {
	err   error
	saved []model.Message
}

func (s *fakeStore) Create(m *model.Message) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, *m)
	return nil
}

type fakeHistory struct{ invalidated []uint }

func (h *fakeHistory) Invalidate(_ context.Context, userID uint) error {
	h.invalidated = append(h.invalidated, userID)
	return nil
}

type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAck) Ack(bool) error { a.acked = true; return nil }
func (a *fakeAck) Nack(_, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func newWorker(store MessageStore, history HistoryInvalidator) *MessagePersistWorker {
	return NewMessagePersistWorker(nil, store, history, "q", zap.NewNop())
}

func TestProcessPersistsAndAcks(t *testing.T) {
	store := &fakeStore{}
	history := &fakeHistory{}
	ack := &fakeAck{}

	newWorker(store, history).process(context.Background(), []byte(`{"user_id":7,"role":"user","content":"hi"}`), false, ack)

	assert.True(t, ack.acked)
	assert.Len(t, store.saved, 1)
	assert.Equal(t, "hi", store.saved[0].Content)
	assert.Equal(t, []uint{7}, history.invalidated)
}

func TestProcessDropsUndecodable(t *testing.T) {
	ack := &fakeAck{}
	newWorker(&fakeStore{}, nil).process(context.Background(), []byte("{"), false, ack)

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestProcessRequeuesStoreFailureOnce(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}

	first := &fakeAck{}
	newWorker(store, nil).process(context.Background(), []byte(`{"user_id":1}`), false, first)
	assert.True(t, first.nacked)
	assert.True(t, first.requeue)

	second := &fakeAck{}
	newWorker(store, nil).process(context.Background(), []byte(`{"user_id":1}`), true, second)
	assert.True(t, second.nacked)
	assert.False(t, second.requeue)
}
