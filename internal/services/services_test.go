package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frontend interface{ Name() string }

type fakeFrontend struct{}

func (fakeFrontend) Name() string { return "fake" }

func TestRegisterAndGet(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Register(QueryFrontend, fakeFrontend{}))
	tbl.Seal()

	fe, err := Get[frontend](tbl, QueryFrontend)
	require.NoError(t, err)
	assert.Equal(t, "fake", fe.Name())
}

func TestMissingCapability(t *testing.T) {
	tbl := NewTable()
	_, err := Get[frontend](tbl, QueryFrontend)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not installed")
}

func TestSealedTableRejectsRegistration(t *testing.T) {
	tbl := NewTable()
	tbl.Seal()
	assert.Error(t, tbl.Register(QueryFrontend, fakeFrontend{}))
}

func TestDuplicateRegistration(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Register(QueryFrontend, fakeFrontend{}))
	assert.Error(t, tbl.Register(QueryFrontend, fakeFrontend{}))
}

func TestWrongType(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Register(QueryFrontend, 42))
	_, err := Get[frontend](tbl, QueryFrontend)
	assert.Error(t, err)
}
