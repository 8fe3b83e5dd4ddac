//go:build integration

package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/omniface/omniface-go/internal/conf"
)

// TestMySQLStore runs the record operations against a real MySQL server.
// Run with: go test -tags integration ./internal/datastore/...
func TestMySQLStore(t *testing.T) {
	ctx := context.Background()

	ctr, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("omniface"),
		tcmysql.WithUsername("omniface"),
		tcmysql.WithPassword("omniface"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.Output.MySQL = conf.MySQLSettings{
		Enabled:  true,
		Username: "omniface",
		Password: "omniface",
		Host:     host,
		Port:     port.Port(),
		Database: "omniface",
	}

	store := New(settings, nil)
	require.NoError(t, store.Open())
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveAttendance(ctx, &AttendanceRecord{
		TenantID: 1, Name: "ana", Status: StatusEarly, Kind: KindKnown,
		Date: day.Format(DateLayout), Time: "08:00:00",
	}))
	require.NoError(t, store.UpsertPersonState(ctx, &PersonState{PersonID: 3, Emotion: "happy", Location: "camera-0"}))
	require.NoError(t, store.UpsertPersonState(ctx, &PersonState{PersonID: 3, Emotion: "neutral", Location: "camera-0"}))

	names, err := store.AttendedToday(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"ana"}, names)

	mysqlStore, ok := store.(*MySQLStore)
	require.True(t, ok)
	var state PersonState
	require.NoError(t, mysqlStore.DB.First(&state, "person_id = ?", 3).Error)
	assert.Equal(t, "neutral", state.Emotion)
}
