package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func TestKafkaNotifier_StatusChanged(t *testing.T) {
	w := &recordingWriter{}
	n := &kafkaNotifier{logger: zap.NewNop().Sugar(), w: w}

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	err := n.StatusChanged(context.Background(), StatusChange{ServerID: "AB12CD", From: "offline", To: "starting", Source: "command", Version: 3, At: at})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "AB12CD", string(msg.Key))
	assert.Equal(t, "X-Event-Type", msg.Headers[0].Key)

	var decoded StatusChange
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "starting", decoded.To)
	assert.Equal(t, int64(3), decoded.Version)
	assert.True(t, at.Equal(decoded.At))
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	n := &kafkaNotifier{logger: zap.NewNop().Sugar(), w: w}

	err := n.StatusChanged(context.Background(), StatusChange{ServerID: "AB12CD"})
	assert.ErrorContains(t, err, "broker down")
}

func TestNoop(t *testing.T) {
	assert.NoError(t, NewNoop().StatusChanged(context.Background(), StatusChange{}))
}
