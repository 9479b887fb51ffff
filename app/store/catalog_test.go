package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorominseok/festival-pj/app/models"
)

func prepStore(t *testing.T) *BoltStore {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "sub", "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func TestBoltStore_NoSnapshot(t *testing.T) {
	s := prepStore(t)
	_, _, err := s.Festivals()
	assert.True(t, errors.Is(err, ErrNoSnapshot))

	_, err = s.Products(1)
	assert.True(t, errors.Is(err, ErrNoSnapshot))
}

func TestBoltStore_SaveFestivals(t *testing.T) {
	s := prepStore(t)
	rating := 4.5
	list := []models.Festival{
		{ID: 30, Title: "first", Categories: []string{"music"}, AverageRating: &rating},
		{ID: 2, Title: "second", EndDate: "2024-06-10"},
		{ID: 17, Title: "third"},
	}

	n, err := s.SaveFestivals(list, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, savedAt, err := s.Festivals()
	require.NoError(t, err)
	assert.Equal(t, list, res, "saved order kept")
	assert.WithinDuration(t, time.Now(), savedAt, time.Minute)

	// replaced, not merged, and trimmed to max
	n, err = s.SaveFestivals([]models.Festival{{ID: 5}, {ID: 6}, {ID: 7}}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	res, _, err = s.Festivals()
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, int64(5), res[0].ID)
	assert.Equal(t, int64(6), res[1].ID)
}

func TestBoltStore_SaveEmpty(t *testing.T) {
	s := prepStore(t)
	_, err := s.SaveFestivals(nil, 10)
	require.NoError(t, err)
	res, _, err := s.Festivals()
	require.NoError(t, err, "empty snapshot is still a snapshot")
	assert.Empty(t, res)
}

func TestBoltStore_Products(t *testing.T) {
	s := prepStore(t)
	require.NoError(t, s.SaveProducts(1, []models.Product{{ID: 11, FestivalID: 1, Name: "ticket", Price: 1000}}))
	require.NoError(t, s.SaveProducts(2, []models.Product{{ID: 21, FestivalID: 2, Name: "tour"}}))
	require.NoError(t, s.SaveProducts(3, []models.Product{}))

	res, err := s.Products(1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "ticket", res[0].Name)

	removed, err := s.RemoveProducts([]int64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Products(1)
	assert.True(t, errors.Is(err, ErrNoSnapshot))
	res, err = s.Products(3)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestBoltStore_Reopen(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "catalog.db")
	s, err := NewBoltStore(fname)
	require.NoError(t, err)
	_, err = s.SaveFestivals([]models.Festival{{ID: 1, Title: "kept"}}, 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewBoltStore(fname)
	require.NoError(t, err)
	defer s.Close() // nolint
	list, savedAt, err := s.Festivals()
	require.NoError(t, err)
	assert.Equal(t, []models.Festival{{ID: 1, Title: "kept"}}, list)
	assert.False(t, savedAt.IsZero())
}

func TestNewBoltStore_BadPath(t *testing.T) {
	dir := t.TempDir()
	_, err := NewBoltStore(dir) // a directory, not a file
	assert.Error(t, err)
}
