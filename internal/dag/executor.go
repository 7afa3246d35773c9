package dag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/llmgrid/internal/ctxlog"
)

// ErrSkipped marks a node that never ran because something upstream failed.
var ErrSkipped = errors.New("skipped")

// State is the lifecycle state of a node during one Run.
type State int32

const (
	Pending State = iota
	Running
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Task does the work of one node.
type Task func(ctx context.Context, id string) error

// Executor runs a graph's nodes on a bounded pool of workers. A node is
// handed to a worker once all of its dependencies are Done. A failing node
// does not stop its siblings; only its transitive dependents are skipped.
type Executor struct {
	graph      *Graph
	numWorkers int

	mu       sync.Mutex
	outcomes map[string]outcome
}

type outcome struct {
	state State
	err   error
}

// taskNode is the per-run state of one graph node.
type taskNode struct {
	id         string
	depCount   atomic.Int32
	state      atomic.Int32
	err        error
	skipOnce   sync.Once
	dependents []*taskNode
}

// NewExecutor creates an executor for g. A worker count below one is
// treated as one.
func NewExecutor(g *Graph, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{graph: g, numWorkers: workers}
}

// Run executes every node of the graph and blocks until each one is Done
// or Failed. The returned error wraps the first real failure in insertion
// order; skipped and canceled nodes are symptoms, not causes.
func (e *Executor) Run(ctx context.Context, task Task) error {
	logger := ctxlog.FromContext(ctx)

	nodes, ready, err := e.snapshot()
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		e.record(nodes)
		return nil
	}

	var wg sync.WaitGroup
	readyChan := make(chan *taskNode, len(nodes))

	logger.Debug("Initializing executor, finding root nodes...")
	rootNodeCount := 0
	for _, n := range ready {
		if n.depCount.Load() == 0 {
			readyChan <- n
			rootNodeCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootNodeCount)

	wg.Add(len(nodes))
	workers := min(e.numWorkers, len(nodes))
	for i := 0; i < workers; i++ {
		go e.worker(ctx, readyChan, &wg, task, i)
	}
	wg.Wait()
	close(readyChan)

	e.record(nodes)

	var failedNodes []string
	var rootCauseError error
	for _, n := range nodes {
		if State(n.state.Load()) != Failed {
			continue
		}
		if errors.Is(n.err, ErrSkipped) || errors.Is(n.err, context.Canceled) {
			continue
		}
		failedNodes = append(failedNodes, n.id)
		if rootCauseError == nil {
			rootCauseError = n.err
		}
	}
	if rootCauseError != nil {
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failedNodes, ", "), rootCauseError)
	}
	return ctx.Err()
}

// Outcome reports how a node ended in the most recent Run.
func (e *Executor) Outcome(id string) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.outcomes[id]
	if !ok {
		return Pending, nil
	}
	return o.state, o.err
}

// snapshot builds fresh per-run state for every node. nodes is in insertion
// order; ready is the same set in topological order, which also rejects
// cycles.
func (e *Executor) snapshot() (nodes, ready []*taskNode, err error) {
	order, err := e.graph.TopologicalOrder()
	if err != nil {
		return nil, nil, err
	}

	ids := e.graph.Nodes()
	byID := make(map[string]*taskNode, len(ids))
	nodes = make([]*taskNode, 0, len(ids))
	for _, id := range ids {
		deps, err := e.graph.Dependencies(id)
		if err != nil {
			return nil, nil, err
		}
		tn := &taskNode{id: id}
		tn.depCount.Store(int32(len(deps)))
		byID[id] = tn
		nodes = append(nodes, tn)
	}
	for _, tn := range nodes {
		dependents, err := e.graph.Dependents(tn.id)
		if err != nil {
			return nil, nil, err
		}
		for _, id := range dependents {
			tn.dependents = append(tn.dependents, byID[id])
		}
	}

	ready = make([]*taskNode, len(order))
	for i, id := range order {
		ready[i] = byID[id]
	}
	return nodes, ready, nil
}

func (e *Executor) record(nodes []*taskNode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outcomes = make(map[string]outcome, len(nodes))
	for _, n := range nodes {
		e.outcomes[n.id] = outcome{state: State(n.state.Load()), err: n.err}
	}
}

// skipDependents recursively marks all downstream nodes as failed and
// releases them from the WaitGroup.
func (e *Executor) skipDependents(ctx context.Context, n *taskNode, wg *sync.WaitGroup) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range n.dependents {
		dependent.skipOnce.Do(func() {
			logger.Warn("Skipping dependent node due to upstream failure.", "nodeID", dependent.id, "dependency", n.id)
			dependent.err = fmt.Errorf("%w due to upstream failure of '%s'", ErrSkipped, n.id)
			dependent.state.Store(int32(Failed))
			wg.Done()
			e.skipDependents(ctx, dependent, wg)
		})
	}
}

func (e *Executor) worker(ctx context.Context, readyChan chan *taskNode, wg *sync.WaitGroup, task Task, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", n.id)

		if err := ctx.Err(); err != nil {
			workerLogger.Warn("Context canceled, skipping node execution.")
			n.err = err
			n.state.Store(int32(Failed))
			e.skipDependents(ctx, n, wg)
			wg.Done()
			continue
		}

		n.state.Store(int32(Running))
		if err := task(ctx, n.id); err != nil {
			workerLogger.Debug("Node execution failed.", "error", err)
			n.err = err
			n.state.Store(int32(Failed))
			e.skipDependents(ctx, n, wg)
			wg.Done()
			continue
		}
		n.state.Store(int32(Done))

		for _, dependent := range n.dependents {
			if dependent.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent node.", "dependentID", dependent.id)
				readyChan <- dependent
			}
		}
		wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}
