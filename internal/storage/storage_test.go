package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"velancis-storefront/internal/observability"
)

type document struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func backends(t *testing.T) map[string]Storage {
	t.Helper()

	file, err := NewFile(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	return map[string]Storage{
		"memory": NewMemory(),
		"file":   file,
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, CartKey)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, CartKey, []byte(`{"a":1}`)))
			got, err := s.Get(ctx, CartKey)
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(got))

			require.NoError(t, s.Set(ctx, CartKey, []byte(`{"a":2}`)))
			got, err = s.Get(ctx, CartKey)
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":2}`, string(got))

			require.NoError(t, s.Delete(ctx, CartKey))
			_, err = s.Get(ctx, CartKey)
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, s.Delete(ctx, CartKey), "deleting a missing key is not an error")
			assert.NoError(t, s.Ping(ctx))
		})
	}
}

func TestStorage_NamespacesAreIndependent(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, SessionKey, []byte(`"session"`)))
			require.NoError(t, s.Set(ctx, CartKey, []byte(`"cart"`)))
			require.NoError(t, s.Delete(ctx, CartKey))

			got, err := s.Get(ctx, SessionKey)
			require.NoError(t, err)
			assert.Equal(t, `"session"`, string(got))
		})
	}
}

func TestMemory_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	value := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", value))
	value[0] = 'z'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'z'
	again, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestFile_RejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../escape", `a\b`, ".hidden"} {
		t.Run(key, func(t *testing.T) {
			assert.Error(t, f.Set(ctx, key, []byte("x")))
			_, err := f.Get(ctx, key)
			assert.Error(t, err)
			assert.False(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestFile_WritesJSONFileAndLeavesNoTemp(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, f.Set(ctx, SessionKey, []byte(`{}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, SessionKey+".json", entries[0].Name())
}

func TestFile_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, SaveJSON(ctx, first, CartKey, document{Name: "cart", Count: 3}))

	second, err := NewFile(dir)
	require.NoError(t, err)

	var got document
	found, err := LoadJSON(ctx, second, CartKey, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, document{Name: "cart", Count: 3}, got)
}

func TestFile_PingFailsWhenDirRemoved(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	f, err := NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, f.Ping(context.Background()))
}

func TestLoadJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("missing_key", func(t *testing.T) {
		var got document
		found, err := LoadJSON(ctx, NewMemory(), CartKey, &got)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("corrupt_value", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Set(ctx, CartKey, []byte("{not json")))

		var got document
		found, err := LoadJSON(ctx, m, CartKey, &got)
		assert.Error(t, err)
		assert.False(t, found)
	})
}

type failingStorage struct {
	Storage
	err error
}

func (f failingStorage) Set(context.Context, string, []byte) error { return f.err }

func TestSaveJSON_PropagatesWriteError(t *testing.T) {
	boom := errors.New("disk full")
	err := SaveJSON(context.Background(), failingStorage{Storage: NewMemory(), err: boom}, CartKey, document{})

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), CartKey)
}

func TestInstrument_RecordsOperations(t *testing.T) {
	ctx := context.Background()
	s := Instrument("instrument-test", NewMemory())

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Ping(ctx))

	// one series per operation
	assert.Equal(t, 4, promtest.CollectAndCount(observability.StorageOpDuration))
}
