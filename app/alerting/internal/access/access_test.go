package access

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vesselGrant(caller, vessel string) Grant {
	return Grant{CallerID: caller, Role: "CAPTAIN", CompanyID: "c-1", VesselID: model.Ptr(vessel)}
}

func TestGrantAllows(t *testing.T) {
	fleet := Grant{CallerID: "dpa", Role: "DPA", CompanyID: "c-1", FleetWide: true}
	captain := vesselGrant("captain", "v-1")

	onV1 := &model.Alert{CompanyID: "c-1", VesselID: model.Ptr("v-1")}
	onV2 := &model.Alert{CompanyID: "c-1", VesselID: model.Ptr("v-2")}
	company := &model.Alert{CompanyID: "c-1"}
	other := &model.Alert{CompanyID: "c-2", VesselID: model.Ptr("v-1")}

	assert.True(t, fleet.Allows(onV1))
	assert.True(t, fleet.Allows(onV2))
	assert.True(t, fleet.Allows(company))
	assert.False(t, fleet.Allows(other))

	assert.True(t, captain.Allows(onV1))
	assert.False(t, captain.Allows(onV2))
	assert.False(t, captain.Allows(company))
	assert.False(t, captain.Allows(other))

	assert.Nil(t, fleet.Scope().VesselID)
	assert.Equal(t, "v-1", *captain.Scope().VesselID)
}

func TestGrantValidate(t *testing.T) {
	g := vesselGrant("captain", "v-1")
	require.NoError(t, g.Validate())

	bad := Grant{CallerID: "x", CompanyID: "c-1"}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidGrant)
	bad = Grant{CallerID: "x", FleetWide: true}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidGrant)

	ro := Grant{CallerID: "auditor", CompanyID: "c-1", FleetWide: true, ReadOnly: true}
	assert.ErrorIs(t, ro.CheckWrite(), ErrReadOnly)
	assert.NoError(t, g.CheckWrite())
}

func TestStaticProvider(t *testing.T) {
	p, err := NewStaticProvider([]Grant{vesselGrant("captain", "v-1")})
	require.NoError(t, err)

	g, err := p.Grant(context.Background(), "captain")
	require.NoError(t, err)
	assert.Equal(t, "CAPTAIN", g.Role)

	_, err = p.Grant(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUnknownCaller)

	_, err = NewStaticProvider([]Grant{vesselGrant("a", "v-1"), vesselGrant("a", "v-2")})
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestHTTPProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/grants/captain":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(vesselGrant("captain", "v-1"))
		case "/v1/grants/broken":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"caller_id":"broken","company_id":"c-1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(&HTTPConfig{BaseURL: srv.URL, Token: "tok"})
	require.NoError(t, err)

	g, err := p.Grant(context.Background(), "captain")
	require.NoError(t, err)
	assert.Equal(t, "v-1", *g.VesselID)

	_, err = p.Grant(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownCaller)

	_, err = p.Grant(context.Background(), "broken")
	assert.ErrorIs(t, err, ErrInvalidGrant)

	_, err = NewHTTPProvider(&HTTPConfig{BaseURL: "grants.local"})
	assert.Error(t, err)
}

type countingProvider struct {
	calls   atomic.Int32
	release chan struct{}
	inner   Provider
}

func (p *countingProvider) Grant(ctx context.Context, callerID string) (*Grant, error) {
	p.calls.Add(1)
	if p.release != nil {
		<-p.release
	}
	return p.inner.Grant(ctx, callerID)
}

func TestCachedProvider(t *testing.T) {
	static, err := NewStaticProvider([]Grant{vesselGrant("captain", "v-1")})
	require.NoError(t, err)
	next := &countingProvider{inner: static}
	p := NewCachedProvider(next, &CacheConfig{TTL: time.Minute, NegativeTTL: time.Minute})
	defer p.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		g, err := p.Grant(ctx, "captain")
		require.NoError(t, err)
		assert.Equal(t, "c-1", g.CompanyID)
	}
	assert.Equal(t, int32(1), next.calls.Load())

	for i := 0; i < 2; i++ {
		_, err := p.Grant(ctx, "ghost")
		assert.ErrorIs(t, err, ErrUnknownCaller)
	}
	assert.Equal(t, int32(2), next.calls.Load())

	p.Invalidate("captain")
	_, err = p.Grant(ctx, "captain")
	require.NoError(t, err)
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestCachedProvider_CoalescesConcurrentLookups(t *testing.T) {
	static, err := NewStaticProvider([]Grant{vesselGrant("captain", "v-1")})
	require.NoError(t, err)
	next := &countingProvider{inner: static, release: make(chan struct{})}
	p := NewCachedProvider(next, nil)
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Grant(context.Background(), "captain")
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(next.release)
	wg.Wait()
	assert.LessOrEqual(t, next.calls.Load(), int32(2))
}
