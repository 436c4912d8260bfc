package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingNotifier struct {
	name string
	err  error
	got  []*Notification
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Send(_ context.Context, n *Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestMulti(t *testing.T) {
	assert.ErrorIs(t, Multi{}.Send(context.Background(), &Notification{}), ErrNoNotifiers)

	boom := errors.New("boom")
	a := &recordingNotifier{name: "a", err: boom}
	b := &recordingNotifier{name: "b"}
	err := Multi{a, b}.Send(context.Background(), &Notification{ID: "n1"})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
}
