package batchfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/indexing"
)

const actionsFile = `{"@search.action":"upload","hotelId":"1","hotelName":"Fancy Stay"}

{"@search.action":"merge","hotelId":"2","rating":null}
{"hotelId":"3","tags":["pool","view"]}
{"@search.action":"delete","hotelId":"4"}
`

func TestRead(t *testing.T) {
	actions, err := Read(strings.NewReader(actionsFile), "hotelId")
	require.NoError(t, err)
	require.Len(t, actions, 4)

	assert.Equal(t, indexing.Upload, actions[0].Type())
	assert.Equal(t, indexing.Merge, actions[1].Type())
	assert.Equal(t, indexing.Upload, actions[2].Type(), "missing action defaults to upload")
	assert.Equal(t, indexing.Delete, actions[3].Type())
	assert.Equal(t, []string{"1", "2", "3", "4"}, []string{
		actions[0].Key(), actions[1].Key(), actions[2].Key(), actions[3].Key(),
	})
}

func TestRead_ReportsLine(t *testing.T) {
	_, err := Read(strings.NewReader("{\"hotelId\":\"1\"}\n{\"hotelName\":\"no key\"}\n"), "hotelId")
	assert.ErrorIs(t, err, apperrors.ErrInvalidAction)
	assert.ErrorContains(t, err, "line 2")

	_, err = Read(strings.NewReader(`{"hotelId":`), "hotelId")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hotels.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(actionsFile), 0o600))

	actions, err := ReadFile(path, "hotelId")
	require.NoError(t, err)
	assert.Len(t, actions, 4)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.jsonl"), "hotelId")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSplit(t *testing.T) {
	hotels := indexing.KeyedBy("hotelId")
	var actions []indexing.Action
	for i := range 7 {
		a, err := hotels.DeleteKey(fmt.Sprint(i))
		require.NoError(t, err)
		actions = append(actions, a)
	}

	batches, err := Split(actions, 3)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"0", "1", "2"}, batches[0].Keys())
	assert.Equal(t, []string{"6"}, batches[2].Keys())

	batches, err = Split(nil, 3)
	require.NoError(t, err)
	assert.Empty(t, batches)
}
