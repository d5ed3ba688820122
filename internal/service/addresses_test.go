package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/model"
)

func TestAddressLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.user(t, "addr@example.com")
	other := e.user(t, "other@example.com")

	a := e.addressFor(t, u.ID)
	list, err := e.address.List(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.ErrorIs(t, e.address.Delete(ctx, other.ID, a.ID), ErrNotFound)
	require.NoError(t, e.address.Delete(ctx, u.ID, a.ID))

	list, err = e.address.List(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestAddressValidation(t *testing.T) {
	e := newEnv(t)
	_, err := e.address.Create(context.Background(), model.Address{UserID: 1, Line1: "  ", City: "Oslo", Country: "NO"})
	require.ErrorIs(t, err, ErrValidation)
}
