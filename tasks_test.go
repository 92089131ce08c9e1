package minlp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskGraphRunsInOrder(t *testing.T) {
	g := newTaskGraph()
	var trace []string
	step := func(id string) taskFunc {
		return func(ctx context.Context) (string, error) {
			trace = append(trace, id)
			return "", nil
		}
	}
	g.add("a", step("a"))
	g.add("b", step("b"))
	g.add("c", step("c"))

	assert.NoError(t, g.run(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, trace)
}

func TestTaskGraphRedirect(t *testing.T) {
	g := newTaskGraph()
	var trace []string
	visits := 0

	g.add("loop", func(ctx context.Context) (string, error) {
		trace = append(trace, "loop")
		visits++
		if visits == 3 {
			return taskTerminate, nil
		}
		return "", nil
	})
	g.add("again", func(ctx context.Context) (string, error) {
		trace = append(trace, "again")
		return "loop", nil
	})

	assert.NoError(t, g.run(context.Background()))
	assert.Equal(t, []string{"loop", "again", "loop", "again", "loop"}, trace)
}

func TestTaskGraphUnknownRedirect(t *testing.T) {
	g := newTaskGraph()
	g.add("a", func(ctx context.Context) (string, error) {
		return "nowhere", nil
	})
	err := g.run(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "nowhere")
}

func TestTaskGraphStopsOnError(t *testing.T) {
	g := newTaskGraph()
	ran := false
	g.add("boom", func(ctx context.Context) (string, error) {
		return "", assert.AnError
	})
	g.add("after", func(ctx context.Context) (string, error) {
		ran = true
		return "", nil
	})
	err := g.run(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `task "boom"`)
	assert.False(t, ran)
}

func TestTaskGraphHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := newTaskGraph()
	g.add("spin", func(ctx context.Context) (string, error) {
		cancel()
		return "spin", nil
	})
	assert.Error(t, g.run(ctx))
}

func TestTaskGraphDuplicateIDPanics(t *testing.T) {
	g := newTaskGraph()
	g.add("a", nil)
	assert.Panics(t, func() { g.add("a", nil) })
}
