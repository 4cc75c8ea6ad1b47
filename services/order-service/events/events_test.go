package events

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	awspkg "github.com/Mark23Dev/project-nexus/pkg/aws"
	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/Mark23Dev/project-nexus/services/order-service/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type recordingHandler struct {
	name string
	err  error
	mu   sync.Mutex
	seen []string
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) Handle(_ context.Context, evt models.OrderEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, evt.Type)
	return h.err
}

func TestDispatcher_RoutesByType(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	all := &recordingHandler{name: "all"}
	created := &recordingHandler{name: "created"}
	d.Subscribe(all)
	d.Subscribe(created, models.EventOrderCreated)

	require.NoError(t, d.Dispatch(context.Background(), models.OrderEvent{Type: models.EventOrderCreated}))
	require.NoError(t, d.Dispatch(context.Background(), models.OrderEvent{Type: models.EventOrderDeleted}))

	assert.Equal(t, []string{models.EventOrderCreated, models.EventOrderDeleted}, all.seen)
	assert.Equal(t, []string{models.EventOrderCreated}, created.seen)
	assert.Equal(t, []string{"all", "created"}, d.Handlers())
}

func TestDispatcher_RunsAllHandlersOnFailure(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	failing := &recordingHandler{name: "failing", err: errors.New("boom")}
	after := &recordingHandler{name: "after"}
	d.Subscribe(failing)
	d.Subscribe(after)

	err := d.Dispatch(context.Background(), models.OrderEvent{Type: models.EventOrderCreated})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing: boom")
	assert.Len(t, after.seen, 1)
}

type fakePublisher struct {
	topic string
	body  []byte
	attrs map[string]string
}

func (f *fakePublisher) Publish(_ context.Context, topicArn string, message []byte, attributes map[string]string) error {
	f.topic, f.body, f.attrs = topicArn, message, attributes
	return nil
}

func TestSNSHandler(t *testing.T) {
	pub := &fakePublisher{}
	h := NewSNSHandler(pub, "arn:aws:sns:us-east-1:000000000000:orders")

	evt := models.OrderEvent{ID: "e-1", Type: models.EventOrderStatusChanged, OrderID: "o-1", Status: models.StatusShipped}
	require.NoError(t, h.Handle(context.Background(), evt))

	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:orders", pub.topic)
	assert.Equal(t, map[string]string{"event_type": models.EventOrderStatusChanged}, pub.attrs)
	var decoded models.OrderEvent
	require.NoError(t, json.Unmarshal(pub.body, &decoded))
	assert.Equal(t, models.StatusShipped, decoded.Status)
}

type fakeWriter struct{ got []models.OrderEvent }

func (f *fakeWriter) PublishOrderEvent(_ context.Context, evt models.OrderEvent) error {
	f.got = append(f.got, evt)
	return nil
}

func TestKafkaHandler(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewKafkaHandler(w).Handle(context.Background(), models.OrderEvent{OrderID: "o-9"}))
	require.Len(t, w.got, 1)
	assert.Equal(t, "o-9", w.got[0].OrderID)
}

type fakeRecorder struct {
	counts map[string]int
	values map[string]float64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{counts: map[string]int{}, values: map[string]float64{}}
}

func (f *fakeRecorder) RecordCount(_ context.Context, name string, _ map[string]string) error {
	f.counts[name]++
	return nil
}

func (f *fakeRecorder) RecordValue(_ context.Context, name string, v float64, _ map[string]string) error {
	f.values[name] += v
	return nil
}

func TestMetricsHandler(t *testing.T) {
	rec := newFakeRecorder()
	h := NewMetricsHandler(rec, "order-service")
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, models.OrderEvent{Type: models.EventOrderCreated, TotalPrice: "40.00"}))
	require.NoError(t, h.Handle(ctx, models.OrderEvent{Type: models.EventOrderStatusChanged, Status: models.StatusDelivered}))
	require.NoError(t, h.Handle(ctx, models.OrderEvent{Type: models.EventOrderStatusChanged, Status: models.StatusProcessing}))
	require.NoError(t, h.Handle(ctx, models.OrderEvent{Type: models.EventOrderDeleted}))

	assert.Equal(t, 1, rec.counts[awspkg.MetricOrdersCreated])
	assert.InDelta(t, 40.0, rec.values[awspkg.MetricOrderValue], 0.001)
	assert.Equal(t, 2, rec.counts[awspkg.MetricOrderStatusChanged])
	assert.Equal(t, 1, rec.counts[awspkg.MetricOrdersCompleted])
	assert.Equal(t, 1, rec.counts[awspkg.MetricOrdersDeleted])
	assert.Zero(t, rec.counts[awspkg.MetricOrdersCancelled])
}

func TestMetricsHandler_CountsRedeliveredEventOnce(t *testing.T) {
	rec := newFakeRecorder()
	h := NewMetricsHandler(rec, "order-service")
	evt := models.OrderEvent{ID: uuid.NewString(), Type: models.EventOrderCreated, TotalPrice: "12.50"}

	for i := 0; i < 3; i++ {
		require.NoError(t, h.Handle(context.Background(), evt))
	}

	assert.Equal(t, 1, rec.counts[awspkg.MetricOrdersCreated])
	assert.InDelta(t, 12.5, rec.values[awspkg.MetricOrderValue], 0.001)
}

type fakeOutbox struct {
	rows      []models.OutboxEvent
	delivered []uuid.UUID
}

func (f *fakeOutbox) ProcessPending(ctx context.Context, limit int, deliver repository.DeliverFunc) (int, error) {
	f.delivered = deliver(ctx, f.rows)
	return len(f.delivered), nil
}

func outboxRow(t *testing.T, evt models.OrderEvent) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	return models.OutboxEvent{ID: uuid.MustParse(evt.ID), EventType: evt.Type, Payload: datatypes.JSON(payload)}
}

func TestRelay_RunOnce(t *testing.T) {
	good := models.OrderEvent{ID: uuid.NewString(), Type: models.EventOrderCreated, OrderID: uuid.NewString()}
	bad := models.OrderEvent{ID: uuid.NewString(), Type: models.EventOrderDeleted, OrderID: uuid.NewString()}
	garbled := models.OutboxEvent{ID: uuid.New(), Payload: datatypes.JSON(`{"type":`)}

	outbox := &fakeOutbox{rows: []models.OutboxEvent{outboxRow(t, good), outboxRow(t, bad), garbled}}
	d := NewDispatcher(zap.NewNop())
	d.Subscribe(&recordingHandler{name: "sink"}, models.EventOrderCreated)
	d.Subscribe(&recordingHandler{name: "broken", err: errors.New("down")}, models.EventOrderDeleted)

	relay := NewRelay(outbox, d, 0, zap.NewNop())
	sent, err := relay.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.ElementsMatch(t, []uuid.UUID{uuid.MustParse(good.ID), garbled.ID}, outbox.delivered)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	relay := NewRelay(&fakeOutbox{}, NewDispatcher(zap.NewNop()), 0, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	relay.Notify()
	relay.Notify()
	cancel()
	<-done
}

// orderedOutbox keeps rows in memory and selects them the way the SQL store
// does: unsent, under the attempt cap, fewest attempts first, then oldest.
type orderedOutbox struct {
	rows []*models.OutboxEvent
}

func (o *orderedOutbox) ProcessPending(ctx context.Context, limit int, deliver repository.DeliverFunc) (int, error) {
	var pending []*models.OutboxEvent
	for _, r := range o.rows {
		if r.SentAt == nil && r.Attempts < repository.MaxDeliveryAttempts {
			pending = append(pending, r)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Attempts != pending[j].Attempts {
			return pending[i].Attempts < pending[j].Attempts
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	batch := make([]models.OutboxEvent, len(pending))
	for i, r := range pending {
		batch[i] = *r
	}
	done := map[uuid.UUID]bool{}
	for _, id := range deliver(ctx, batch) {
		done[id] = true
	}
	now := time.Now()
	for _, r := range pending {
		if done[r.ID] {
			r.SentAt = &now
		} else {
			r.Attempts++
		}
	}
	return len(done), nil
}

func TestRelay_FailingEventsDoNotStarveNewerOnes(t *testing.T) {
	start := time.Now().Add(-time.Hour)
	outbox := &orderedOutbox{}
	for i := 0; i < 100; i++ {
		row := outboxRow(t, models.OrderEvent{ID: uuid.NewString(), Type: models.EventOrderDeleted})
		row.CreatedAt = start.Add(time.Duration(i) * time.Second)
		outbox.rows = append(outbox.rows, &row)
	}
	fresh := outboxRow(t, models.OrderEvent{ID: uuid.NewString(), Type: models.EventOrderCreated})
	fresh.CreatedAt = time.Now()
	outbox.rows = append(outbox.rows, &fresh)

	sink := &recordingHandler{name: "sink"}
	d := NewDispatcher(zap.NewNop())
	d.Subscribe(sink, models.EventOrderCreated)
	d.Subscribe(&recordingHandler{name: "broken", err: errors.New("topic missing")}, models.EventOrderDeleted)
	relay := NewRelay(outbox, d, 0, zap.NewNop())

	sent, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)

	sent, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.NotNil(t, outbox.rows[100].SentAt)
	assert.Equal(t, []string{models.EventOrderCreated}, sink.seen)
}

func TestRelay_StopsSelectingExhaustedEvents(t *testing.T) {
	row := outboxRow(t, models.OrderEvent{ID: uuid.NewString(), Type: models.EventOrderDeleted})
	row.Attempts = repository.MaxDeliveryAttempts - 1
	outbox := &orderedOutbox{rows: []*models.OutboxEvent{&row}}

	broken := &recordingHandler{name: "broken", err: errors.New("down")}
	d := NewDispatcher(zap.NewNop())
	d.Subscribe(broken)
	relay := NewRelay(outbox, d, 0, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := relay.RunOnce(context.Background())
		require.NoError(t, err)
	}

	assert.Len(t, broken.seen, 1)
	assert.Equal(t, repository.MaxDeliveryAttempts, row.Attempts)
	assert.Nil(t, row.SentAt)
}
