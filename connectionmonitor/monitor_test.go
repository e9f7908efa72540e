package connectionmonitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	mu         sync.Mutex
	checkErr   error
	reconnects int
	checks     int
}

func (f *fakeTarget) CheckConnection(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.checkErr
}

func (f *fakeTarget) Reconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	return errors.New("all endpoints down")
}

func (f *fakeTarget) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks, f.reconnects
}

func TestCheckAndReconnectIsBounded(t *testing.T) {
	target := &fakeTarget{checkErr: errors.New("unreachable")}
	m := NewConnectionMonitor(target, logrus.New(), "rpc", Options{
		Interval:             time.Hour,
		ReconnectWait:        time.Millisecond,
		MaxReconnectAttempts: 3,
	}).(*connectionMonitor)

	err := m.checkAndReconnect(context.Background(), make(chan struct{}))
	require.Error(t, err)

	checks, reconnects := target.counts()
	assert.Equal(t, 1, checks)
	assert.Equal(t, 3, reconnects)
}

func TestMonitorRunsAndStops(t *testing.T) {
	target := &fakeTarget{}
	m := NewConnectionMonitor(target, logrus.New(), "rpc", Options{Interval: 5 * time.Millisecond})

	require.NoError(t, m.Start(context.Background()))
	require.Error(t, m.Start(context.Background()))

	require.Eventually(t, func() bool {
		checks, _ := target.counts()
		return checks >= 2
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()

	checks, reconnects := target.counts()
	time.Sleep(20 * time.Millisecond)
	after, _ := target.counts()
	assert.Equal(t, checks, after)
	assert.Zero(t, reconnects)
}
