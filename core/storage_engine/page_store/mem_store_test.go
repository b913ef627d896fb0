package pagestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pagemanager "github.com/sushant-115/gojobuf/core/write_engine/page_manager"
)

func TestMemStore_ContentSurvivesClose(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Open())

	id, err := s.OpenTableFile("t.db")
	require.NoError(t, err)
	require.NoError(t, s.AppendRawPage(id, 1, filledPage(7)))
	require.NoError(t, s.CloseTableFiles())

	buf := make([]byte, pagemanager.PageSize)
	require.ErrorIs(t, s.ReadPage(id, 1, buf), ErrTableNotOpen)

	require.NoError(t, s.Open())
	id, err = s.OpenTableFile("t.db")
	require.NoError(t, err)
	require.NoError(t, s.ReadPage(id, 1, buf))
	assert.Equal(t, filledPage(7), buf)

	n, err := s.NumPages(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestMemStore_RawAppendAndBounds(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Open())
	id, err := s.OpenTableFile("t.db")
	require.NoError(t, err)

	require.ErrorIs(t, s.AppendRawPage(id, 0, filledPage(1)), ErrRawWriteOverlap)
	require.ErrorIs(t, s.ReadPage(id, 3, make([]byte, pagemanager.PageSize)), ErrIO)
	require.ErrorIs(t, s.WritePage(id, 1, []byte{1}), ErrShortPageBuffer)

	require.NoError(t, s.AppendRawPage(id, 3, filledPage(3)))
	n, err := s.NumPages(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)
}
