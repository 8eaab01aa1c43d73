package backend_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/coffeeshop/core/backend"
	"github.com/relabs-tech/coffeeshop/core/pointers"
)

func TestStore(t *testing.T) {
	store := freshService(t).backend.Store()
	ctx := context.Background()

	drinks, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, drinks)

	latte, err := store.Create(ctx, "Latte", backend.Recipe{{Color: "brown", Name: "espresso", Parts: 1}, {Color: "white", Name: "milk", Parts: 3}})
	require.NoError(t, err)
	mocha, err := store.Create(ctx, "Mocha", backend.Recipe{{Color: "black", Name: "chocolate", Parts: 1}})
	require.NoError(t, err)
	assert.Greater(t, mocha.ID, latte.ID)

	got, err := store.Get(ctx, latte.ID)
	require.NoError(t, err)
	assert.Equal(t, latte, got)

	drinks, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, drinks, 2)
	assert.Equal(t, "Latte", drinks[0].Title)
	assert.Equal(t, "Mocha", drinks[1].Title)

	_, err = store.Create(ctx, "Latte", backend.Recipe{})
	assert.True(t, errors.Is(err, backend.ErrConstraintViolation), err)

	updated, err := store.Update(ctx, latte.ID, pointers.String("Caffe Latte"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Caffe Latte", updated.Title)
	assert.Equal(t, latte.Recipe, updated.Recipe)

	updated, err = store.Update(ctx, latte.ID, nil, backend.Recipe{{Color: "white", Name: "milk", Parts: 1}})
	require.NoError(t, err)
	assert.Equal(t, "Caffe Latte", updated.Title)
	assert.Len(t, updated.Recipe, 1)

	_, err = store.Update(ctx, latte.ID, pointers.String("Mocha"), nil)
	assert.True(t, errors.Is(err, backend.ErrConstraintViolation), err)
	// the failed update was rolled back
	got, err = store.Get(ctx, latte.ID)
	require.NoError(t, err)
	assert.Equal(t, "Caffe Latte", got.Title)

	_, err = store.Update(ctx, 4242, pointers.String("Tea"), nil)
	assert.Equal(t, backend.ErrNotFound, err)

	id, err := store.Delete(ctx, latte.ID)
	require.NoError(t, err)
	assert.Equal(t, latte.ID, id)

	_, err = store.Get(ctx, latte.ID)
	assert.Equal(t, backend.ErrNotFound, err)
	_, err = store.Delete(ctx, latte.ID)
	assert.Equal(t, backend.ErrNotFound, err)
}

func TestStore_Unavailable(t *testing.T) {
	s := freshService(t)
	store := s.backend.Store()
	require.NoError(t, s.db.Close())

	ctx := context.Background()
	_, err := store.List(ctx)
	assert.True(t, errors.Is(err, backend.ErrStoreUnavailable), err)
	_, err = store.Get(ctx, 1)
	assert.True(t, errors.Is(err, backend.ErrStoreUnavailable), err)
	_, err = store.Create(ctx, "Tea", nil)
	assert.True(t, errors.Is(err, backend.ErrStoreUnavailable), err)
	_, err = store.Delete(ctx, 1)
	assert.True(t, errors.Is(err, backend.ErrStoreUnavailable), err)
}
