package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublishOrderEvent_KeyedByOrder(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, topic: "order.events", logger: zap.NewNop()}

	evt := models.OrderEvent{ID: "e-1", Type: models.EventOrderCreated, OrderID: "o-1", TotalPrice: "40.00"}
	require.NoError(t, p.PublishOrderEvent(context.Background(), evt))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("o-1"), w.msgs[0].Key)
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, []byte(models.EventOrderCreated), w.msgs[0].Headers[0].Value)

	var decoded models.OrderEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "40.00", decoded.TotalPrice)
}

func TestPublishOrderEvent_Error(t *testing.T) {
	p := &Producer{writer: &fakeWriter{err: errors.New("broker down")}, topic: "order.events", logger: zap.NewNop()}
	assert.Error(t, p.PublishOrderEvent(context.Background(), models.OrderEvent{Type: models.EventOrderDeleted}))
}
