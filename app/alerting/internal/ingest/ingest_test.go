package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/service"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/mq/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]*model.Fact
	err     error
	block   chan struct{}
}

func (r *recorder) ProcessFacts(_ context.Context, facts []*model.Fact) (service.BatchStats, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, facts)
	return service.BatchStats{Created: len(facts)}, r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestDecode(t *testing.T) {
	facts, err := Decode([]byte(`{"category":"capa","entity_id":"capa-1","company_id":"c-1","vessel_id":"v-1","attributes":{"days_overdue":3}}`))
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, model.CategoryCAPA, facts[0].Category)
	assert.Equal(t, "v-1", *facts[0].VesselID)
	assert.EqualValues(t, 3, facts[0].Attributes["days_overdue"])

	facts, err = Decode([]byte(` [{"category":"reminder","entity_id":"r-1","company_id":"c-1"}, null, {"category":"submission","entity_id":"s-1","company_id":"c-1","cleared":true}]`))
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.True(t, facts[1].Cleared)
	assert.Nil(t, facts[0].VesselID)

	for _, bad := range []string{"", "   ", "{", `{"category":5}`} {
		_, err := Decode([]byte(bad))
		assert.ErrorIs(t, err, ErrMalformedPayload, bad)
	}
}

func TestFactConsumer_Handle(t *testing.T) {
	rec := &recorder{}
	ts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	c := &FactConsumer{proc: rec, clock: func() time.Time { return ts }, logger: logger.NewNoop()}
	ctx := context.Background()

	err := c.Handle(ctx, &kafka.Message{Value: []byte(`{"category":"capa","entity_id":"capa-1","company_id":"c-1"}`)})
	require.NoError(t, err)
	require.Equal(t, 1, rec.count())
	assert.True(t, rec.batches[0][0].ObservedAt.Equal(ts))

	kt := ts.Add(-time.Minute)
	require.NoError(t, c.Handle(ctx, &kafka.Message{Timestamp: kt, Value: []byte(`{"category":"capa","entity_id":"capa-2","company_id":"c-1"}`)}))
	assert.True(t, rec.batches[1][0].ObservedAt.Equal(kt))

	// 格式错误的消息不重试
	calls := 0
	h := kafka.Chain(func(ctx context.Context, msg *kafka.Message) error {
		calls++
		return c.Handle(ctx, msg)
	}, kafka.RetryMiddleware(3, time.Millisecond))
	err = h(ctx, &kafka.Message{Value: []byte("not json")})
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.Equal(t, 1, calls)

	// 处理失败会重试
	rec.err = errors.New("db down")
	calls = 0
	err = h(ctx, &kafka.Message{Value: []byte(`{"category":"capa","entity_id":"capa-3","company_id":"c-1"}`)})
	assert.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestIntake(t *testing.T) {
	rec := &recorder{}
	in := NewIntake(&IntakeConfig{Workers: 4}, rec, logger.NewNoop())

	facts := []*model.Fact{{Category: model.CategoryReminder, EntityID: "r-1", CompanyID: "c-1"}}
	require.NoError(t, in.Submit(context.Background(), facts))
	require.NoError(t, in.Close())

	assert.Equal(t, 1, rec.count())
	assert.False(t, rec.batches[0][0].ObservedAt.IsZero())
	assert.ErrorIs(t, in.Submit(context.Background(), facts), ErrClosed)
}

func TestIntake_Overloaded(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	in := NewIntake(&IntakeConfig{Workers: 1}, rec, logger.NewNoop())

	fact := func() []*model.Fact {
		return []*model.Fact{{Category: model.CategoryReminder, EntityID: "r-1", CompanyID: "c-1"}}
	}
	require.NoError(t, in.Submit(context.Background(), fact()))
	require.Eventually(t, func() bool { return in.pool.Running() == 1 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, in.Submit(context.Background(), fact()), ErrOverloaded)

	close(rec.block)
	require.NoError(t, in.Close())
	assert.Equal(t, 1, rec.count())
}
