package minlp

import (
	"context"

	"github.com/pkg/errors"
)

// taskTerminate is the sentinel a task returns to stop the graph.
const taskTerminate = "terminate"

// taskFunc performs one step of the solve. It returns the id of the next task
// to run, or "" to fall through to the next task in registration order.
type taskFunc func(ctx context.Context) (next string, err error)

// taskGraph is a tiny sequential scheduler: tasks run in registration order,
// and any task may redirect the flow by returning another task's id. The
// multi-tree loop is expressed as a goto back to its first per-iteration task.
type taskGraph struct {
	order []string
	tasks map[string]taskFunc
}

func newTaskGraph() *taskGraph {
	return &taskGraph{tasks: make(map[string]taskFunc)}
}

// add registers a task under a unique id. Registration order is execution
// order.
func (g *taskGraph) add(id string, fn taskFunc) {
	if _, ok := g.tasks[id]; ok {
		// duplicate ids are a programming error in the graph construction
		panic("duplicate task id: " + id)
	}
	g.order = append(g.order, id)
	g.tasks[id] = fn
}

func (g *taskGraph) indexOf(id string) (int, bool) {
	for i, t := range g.order {
		if t == id {
			return i, true
		}
	}
	return 0, false
}

// run executes the graph until a task returns taskTerminate, an error occurs,
// or the context is cancelled. Falling off the end of the order also
// terminates.
func (g *taskGraph) run(ctx context.Context) error {
	i := 0
	for i < len(g.order) {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := g.order[i]
		next, err := g.tasks[id](ctx)
		if err != nil {
			return errors.Wrapf(err, "task %q", id)
		}
		switch next {
		case "":
			i++
		case taskTerminate:
			return nil
		default:
			j, ok := g.indexOf(next)
			if !ok {
				return errors.Errorf("task %q redirected to unknown task %q", id, next)
			}
			i = j
		}
	}
	return nil
}
