// Package batchfile reads index actions stored one JSON object per line and
// splits them into submittable batches.
package batchfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/indexing"
)

// maxLine bounds one encoded action.
const maxLine = 16 << 20

// Read decodes every non-blank line of r as an action keyed by keyField. A
// line without "@search.action" is an upload.
func Read(r io.Reader, keyField string) ([]indexing.Action, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	var actions []indexing.Action
	for line := 1; sc.Scan(); line++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		a, err := indexing.DecodeAction(raw, keyField)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		actions = append(actions, a)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading actions: %w", err)
	}
	return actions, nil
}

// ReadFile is Read on the named file.
func ReadFile(path, keyField string) ([]indexing.Action, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	actions, err := Read(f, keyField)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return actions, nil
}

// Split groups actions, in order, into batches of at most size actions.
func Split(actions []indexing.Action, size int) ([]*indexing.Batch, error) {
	if size <= 0 {
		size = indexing.DefaultMaxBatchSize
	}
	batches := make([]*indexing.Batch, 0, (len(actions)+size-1)/size)
	for start := 0; start < len(actions); start += size {
		b, err := indexing.NewBatchWithLimit(size, actions[start:min(start+size, len(actions))]...)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}
