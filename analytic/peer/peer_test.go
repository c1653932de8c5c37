package peer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/analytic/peer"
	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/testutil"
)

func newPeer(t *testing.T, bus analytic.Bus, params map[string]string) analytic.Analytic {
	t.Helper()
	cfg := analytic.NewConfig("Peer", []string{"in.p"}, []string{"out.p"}, params)
	a, err := peer.New(cfg, analytic.Dependencies{Bus: bus})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	return a
}

func feed(t *testing.T, bus *testutil.MemBus, source string, value, ts float64) {
	t.Helper()
	require.NoError(t, bus.Publish(context.Background(), "in.p", data.New("in.p", source, ts, value)))
}

func TestStrayingSourceFlagged(t *testing.T) {
	bus := testutil.NewMemBus()
	newPeer(t, bus, map[string]string{"window": "10", "threshold": "10"})

	for ts := 0.0; ts < 10; ts++ {
		feed(t, bus, "a", 50, ts)
		feed(t, bus, "b", 50, ts)
	}
	assert.Empty(t, bus.Records("out.p"))

	feed(t, bus, "c", 100, 10)

	recs := bus.Records("out.p")
	require.Len(t, recs, 1)
	assert.Equal(t, "c", recs[0].SourceID)
	assert.Equal(t, data.TypeAnomaly, recs[0].Type)
	src, _ := recs[0].Param(data.ParamAnomalySource)
	assert.Equal(t, "Peer", src)
}

func TestConformingSourcesStayQuiet(t *testing.T) {
	bus := testutil.NewMemBus()
	newPeer(t, bus, map[string]string{"window": "10", "threshold": "10"})

	for ts := 0.0; ts < 20; ts++ {
		feed(t, bus, "a", 48, ts)
		feed(t, bus, "b", 52, ts)
	}
	assert.Empty(t, bus.Records("out.p"))
}

func TestNoInternalChannelTraffic(t *testing.T) {
	bus := testutil.NewMemBus()
	newPeer(t, bus, map[string]string{"window": "10", "threshold": "1"})

	feed(t, bus, "a", 50, 0)
	feed(t, bus, "b", 90, 1)

	// The chain is wired by callbacks: only the outer channels carry records
	assert.Empty(t, bus.Records("Peer.internal.mean"))
	assert.Empty(t, bus.Records("Peer.internal.spread"))
	assert.NotEmpty(t, bus.Records("out.p"))
}

func TestStopSilencesChain(t *testing.T) {
	bus := testutil.NewMemBus()
	a := newPeer(t, bus, map[string]string{"window": "10", "threshold": "1"})

	feed(t, bus, "a", 50, 0)
	require.NoError(t, a.Stop(time.Second))

	feed(t, bus, "b", 500, 1)
	assert.Empty(t, bus.Records("out.p"))
}

func TestResetForgetsGroupMean(t *testing.T) {
	bus := testutil.NewMemBus()
	a := newPeer(t, bus, map[string]string{"window": "10", "threshold": "10"})

	for ts := 0.0; ts < 5; ts++ {
		feed(t, bus, "a", 50, ts)
	}
	a.Reset()

	// First record after reset only seeds the group mean again
	feed(t, bus, "b", 500, 5)
	assert.Empty(t, bus.Records("out.p"))
}

func TestConfigRejections(t *testing.T) {
	bus := testutil.NewMemBus()
	for name, params := range map[string]map[string]string{
		"missing window":    {"threshold": "10"},
		"missing threshold": {"window": "10"},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := analytic.NewConfig("Peer", []string{"a"}, []string{"b"}, params)
			_, err := peer.New(cfg, analytic.Dependencies{Bus: bus})
			assert.Error(t, err)
		})
	}
}
