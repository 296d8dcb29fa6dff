package scattergather

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAggregator_ConcurrentAdd(t *testing.T) {
	a := NewDefaultAggregator()

	const workers, perWorker = 16, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := make([]interface{}, perWorker)
			for i := range batch {
				batch[i] = fmt.Sprintf("%d-%d", w, i)
			}
			a.Add(batch)
		}(w)
	}
	wg.Wait()

	items := a.Aggregate().([]interface{})
	require.Len(t, items, workers*perWorker)

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		s := item.(string)
		assert.False(t, seen[s], "duplicate item %s", s)
		seen[s] = true
	}
}

func TestDefaultAggregator_EmptyAggregateIsNotNil(t *testing.T) {
	a := NewDefaultAggregator()
	a.Add(nil)

	items := a.Aggregate()
	assert.NotNil(t, items)
	raw, err := json.Marshal(items)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestDefaultAggregator_AggregateIsSnapshot(t *testing.T) {
	a := NewDefaultAggregator()
	a.Add([]interface{}{1})
	first := a.Aggregate().([]interface{})
	first[0] = 99

	assert.Equal(t, []interface{}{1}, a.Aggregate())
}

func TestJSONAggregator_ConvertsItems(t *testing.T) {
	a := NewJSONAggregator()
	a.Add([]interface{}{
		json.RawMessage(`{"Value":"A"}`),
		[]byte(`[1,2]`),
		map[string]int{"n": 1},
		"text",
		nil,
		make(chan int),
		json.RawMessage(`{broken`),
		` {"a":1}`,
		`["x"]`,
		"42",
		`{"a":`,
	})

	nodes := a.Aggregate().([]json.RawMessage)
	got := make([]string, len(nodes))
	for i, n := range nodes {
		got[i] = string(n)
	}
	assert.Equal(t, []string{`{"Value":"A"}`, `[1,2]`, `{"n":1}`, `"text"`, `null`, `null`, `null`, `{"a":1}`, `["x"]`, `"42"`, `"{\"a\":"`}, got)

	raw, err := json.Marshal(a.Aggregate())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"Value":"A"},[1,2],{"n":1},"text",null,null,null,{"a":1},["x"],"42","{\"a\":"]`, string(raw))
}

func TestJSONAggregator_EmptyAggregate(t *testing.T) {
	raw, err := json.Marshal(NewJSONAggregator().Aggregate())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}
