// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/auction-house/pkg/kv"
)

// StoreFactory creates a fresh Store instance for testing. Keys used by the
// suite are prefixed with "kvtest:".
type StoreFactory func(t *testing.T) kv.Store

// RunConformanceTests runs all conformance tests against a Store implementation
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, store kv.Store)
	}{
		{"SetGet", testSetGet},
		{"GetMissing", testGetMissing},
		{"Del", testDel},
		{"Expiry", testExpiry},
		{"ListPushRange", testListPushRange},
		{"ListTrim", testListTrim},
		{"WrongType", testWrongType},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			tt.test(t, store)
		})
	}
}

func testSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "kvtest:receipt", []byte("hello")))
	got, err := store.Get(ctx, "kvtest:receipt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	require.NoError(t, store.Set(ctx, "kvtest:receipt", []byte("again")))
	got, err = store.Get(ctx, "kvtest:receipt")
	require.NoError(t, err)
	assert.Equal(t, []byte("again"), got)
}

func testGetMissing(t *testing.T, store kv.Store) {
	_, err := store.Get(context.Background(), "kvtest:missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testDel(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "kvtest:a", []byte("1")))
	_, err := store.LPush(ctx, "kvtest:b", []byte("1"))
	require.NoError(t, err)

	n, err := store.Del(ctx, "kvtest:a", "kvtest:b", "kvtest:c")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = store.Get(ctx, "kvtest:a")
	assert.ErrorIs(t, err, kv.ErrNotFound)
	list, err := store.LRange(ctx, "kvtest:b", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, list)

	n, err = store.Del(ctx, "kvtest:a")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testExpiry(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "kvtest:short", []byte("x"), 50*time.Millisecond))
	require.Eventually(t, func() bool {
		_, err := store.Get(ctx, "kvtest:short")
		return err == kv.ErrNotFound
	}, 2*time.Second, 20*time.Millisecond)
}

func testListPushRange(t *testing.T, store kv.Store) {
	ctx := context.Background()
	n, err := store.LPush(ctx, "kvtest:list", []byte("a"), []byte("b"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	n, err = store.LPush(ctx, "kvtest:list", []byte("c"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	all, err := store.LRange(ctx, "kvtest:list", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("c"), []byte("b"), []byte("a")}, all)

	tail, err := store.LRange(ctx, "kvtest:list", -2, 10)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("b"), []byte("a")}, tail)

	empty, err := store.LRange(ctx, "kvtest:list", 5, 9)
	require.NoError(t, err)
	assert.Empty(t, empty)

	missing, err := store.LRange(ctx, "kvtest:nolist", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func testListTrim(t *testing.T, store kv.Store) {
	ctx := context.Background()
	for _, v := range []string{"1", "2", "3", "4"} {
		_, err := store.LPush(ctx, "kvtest:capped", []byte(v))
		require.NoError(t, err)
	}
	require.NoError(t, store.LTrim(ctx, "kvtest:capped", 0, 1))
	got, err := store.LRange(ctx, "kvtest:capped", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("4"), []byte("3")}, got)

	// trimming to nothing removes the key, so it can hold a plain value again
	require.NoError(t, store.LTrim(ctx, "kvtest:capped", 5, 6))
	got, err = store.LRange(ctx, "kvtest:capped", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, store.Set(ctx, "kvtest:capped", []byte("x")))
}

func testWrongType(t *testing.T, store kv.Store) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "kvtest:plain", []byte("x")))
	_, err := store.LPush(ctx, "kvtest:plain", []byte("y"))
	assert.ErrorIs(t, err, kv.ErrWrongType)
}

func testPing(t *testing.T, store kv.Store) {
	assert.NoError(t, store.Ping(context.Background()))
}
