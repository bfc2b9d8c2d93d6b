package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Satelliteq/PixelHunt-sub000/internal/realtime"
)

// brokenDriver hands out connections whose statements always fail,
// standing in for a database unreachable mid-poll.
type brokenDriver struct{}

func (brokenDriver) Open(string) (driver.Conn, error) { return brokenConn{}, nil }

type brokenConn struct{}

func (brokenConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("connection reset") }
func (brokenConn) Close() error                        { return nil }
func (brokenConn) Begin() (driver.Tx, error)           { return nil, errors.New("connection reset") }

func TestFallbackPollKeepsWindowOnFailure(t *testing.T) {
	sql.Register("rooms-listener-broken", brokenDriver{})
	db, err := sql.Open("rooms-listener-broken", "")
	require.NoError(t, err)
	defer db.Close()

	since := time.Now().Add(-time.Minute)
	l := &Listener{
		db:       db,
		bus:      realtime.NewMemoryBus(),
		cfg:      DefaultListenerConfig(),
		lastPoll: since,
	}

	require.Error(t, l.republishChanged(context.Background()))
	assert.Equal(t, since, l.lastPoll,
		"a failed poll must keep the window so the missed rooms are retried")
}
