package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lobwatch/internal/domain"
)

type fakeReader struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	failAt error
	closes int
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	fail := r.failAt
	r.mu.Unlock()
	if fail != nil {
		return kafka.Message{}, fail
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFrameReader_EmitsValuesInOrder(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{
		{Value: []byte(`{"timestamp":1}`)},
		{Value: []byte(`{"timestamp":2}`)},
	}, failAt: errors.New("broker gone")}
	r := newFrameReader(fr, "lob", discardLogger())

	ch, err := r.Stream(context.Background())
	require.NoError(t, err)

	var got []string
	for f := range ch {
		got = append(got, string(f))
	}
	assert.Equal(t, []string{`{"timestamp":1}`, `{"timestamp":2}`}, got)
}

func TestFrameReader_CancelClosesChannel(t *testing.T) {
	r := newFrameReader(&fakeReader{}, "lob", discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := r.Stream(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestFrameReader_CloseIdempotent(t *testing.T) {
	fr := &fakeReader{}
	r := newFrameReader(fr, "lob", discardLogger())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, fr.closes)

	_, err := r.Stream(context.Background())
	assert.True(t, errors.Is(err, domain.ErrClosed))
}

func TestNewFrameReader_Validation(t *testing.T) {
	_, err := NewFrameReader(Config{Topic: "lob"}, discardLogger())
	assert.Error(t, err)
	_, err = NewFrameReader(Config{Brokers: []string{"localhost:9092"}}, discardLogger())
	assert.Error(t, err)
}

func TestReaderConfig(t *testing.T) {
	rc := readerConfig(Config{Brokers: []string{"b:9092"}, Topic: "lob"})
	assert.Empty(t, rc.GroupID)

	rc = readerConfig(Config{Brokers: []string{"b:9092"}, Topic: "lob", GroupID: "dash", MaxBytes: 1 << 20})
	assert.Equal(t, "dash", rc.GroupID)
	assert.Equal(t, 1<<20, rc.MaxBytes)
}

func TestNewReader_PartitionReaderStartsAtNewest(t *testing.T) {
	r, err := newReader(Config{Brokers: []string{"localhost:9092"}, Topic: "lob"})
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, kafka.LastOffset, r.Offset())
}
