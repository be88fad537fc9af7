package jsonfile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "geotrigger/adapters/memory"
	"geotrigger/core"
)

func TestDirectoryPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "directory.json")
	ctx := context.Background()

	d, err := New(path)
	require.NoError(t, err)

	require.NoError(t, d.PutUser(ctx, &core.User{ID: "u1", DisplayName: "Ana"}))
	require.NoError(t, d.PutVenue(ctx, &core.Venue{ID: "v1", Name: "Cafe Centro",
		Settings: core.VenueSettings{GeofenceEnabled: true}}))

	// A fresh handle reads back what the first one wrote.
	d2, err := New(path)
	require.NoError(t, err)

	u, err := d2.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Ana", u.DisplayName)

	v, err := d2.FindVenueByID(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, v.Settings.GeofenceEnabled)

	missing, err := d2.FindUserByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDirectoryMissingFileIsEmpty(t *testing.T) {
	d, err := New(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, d.Venues())
}

func TestDirectorySeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.json")
	ctx := context.Background()

	d, err := New(path)
	require.NoError(t, err)
	require.NoError(t, d.PutUser(ctx, &core.User{ID: "u1"}))
	require.NoError(t, d.PutVenue(ctx, &core.Venue{ID: "v1", Name: "Cafe"}))
	require.NoError(t, d.PutVenue(ctx, &core.Venue{ID: "v2", Name: "Bar"}))

	store := mem.New()
	require.NoError(t, d.Seed(ctx, store))

	v, err := store.FindVenueByID(ctx, "v2")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "Bar", v.Name)
}
