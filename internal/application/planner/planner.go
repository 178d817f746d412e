package planner

import (
	"dario.cat/mergo"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

// ExecutionPlan is a dependency-resolved schedule for one graph.
// Order is the sequential execution order. Levels groups nodes that
// have no unresolved dependency at the same step, so a concurrent
// executor can fan out a level without re-deriving dependencies.
// Upstream lists each node's direct dependencies in edge iteration
// order, which fixes the last-writer-wins order for input merging.
type ExecutionPlan struct {
	Order    []string
	Levels   [][]string
	Upstream map[string][]string

	graph *domain.Graph
}

// Plan validates graph structure and computes an execution plan with
// Kahn's algorithm. A cycle is reported as a CycleDetected error; no
// partial order is returned for cyclic graphs.
func Plan(graph *domain.Graph) (*ExecutionPlan, error) {
	if graph == nil || len(graph.Nodes) == 0 {
		return nil, domain.NewError(domain.ErrCodeCycleDetected, "graph must have at least one node")
	}

	nodeIDs := make(map[string]bool, len(graph.Nodes))
	for _, n := range graph.Nodes {
		if n.ID == "" {
			return nil, domain.NewError(domain.ErrCodeInvalidConfig, "node ID is required")
		}
		if nodeIDs[n.ID] {
			return nil, domain.NewError(domain.ErrCodeInvalidConfig, "duplicate node ID: %s", n.ID)
		}
		nodeIDs[n.ID] = true
	}

	adjacency := make(map[string][]string, len(graph.Nodes))
	inDegree := make(map[string]int, len(graph.Nodes))
	upstream := make(map[string][]string, len(graph.Nodes))
	edgeIDs := make(map[string]bool, len(graph.Edges))

	for _, e := range graph.Edges {
		if !nodeIDs[e.Source] {
			return nil, domain.NewError(domain.ErrCodeInvalidConfig, "edge %s references unknown source node: %s", e.ID, e.Source)
		}
		if !nodeIDs[e.Target] {
			return nil, domain.NewError(domain.ErrCodeInvalidConfig, "edge %s references unknown target node: %s", e.ID, e.Target)
		}
		if e.ID != "" {
			if edgeIDs[e.ID] {
				return nil, domain.NewError(domain.ErrCodeInvalidConfig, "duplicate edge ID: %s", e.ID)
			}
			edgeIDs[e.ID] = true
		}
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
		inDegree[e.Target]++
		upstream[e.Target] = append(upstream[e.Target], e.Source)
	}

	// Kahn's algorithm, layered. Seeding and expansion follow node
	// declaration order so plans are deterministic for a given graph.
	remaining := make(map[string]int, len(graph.Nodes))
	for _, n := range graph.Nodes {
		remaining[n.ID] = inDegree[n.ID]
	}

	var order []string
	var levels [][]string
	frontier := make([]string, 0, len(graph.Nodes))
	for _, n := range graph.Nodes {
		if remaining[n.ID] == 0 {
			frontier = append(frontier, n.ID)
		}
	}

	for len(frontier) > 0 {
		level := frontier
		levels = append(levels, level)
		order = append(order, level...)

		ready := make(map[string]bool)
		for _, id := range level {
			for _, next := range adjacency[id] {
				remaining[next]--
				if remaining[next] == 0 {
					ready[next] = true
				}
			}
		}

		frontier = frontier[:0:0]
		for _, n := range graph.Nodes {
			if ready[n.ID] {
				frontier = append(frontier, n.ID)
			}
		}
	}

	if len(order) != len(graph.Nodes) {
		var stuck []string
		for _, n := range graph.Nodes {
			if remaining[n.ID] > 0 {
				stuck = append(stuck, n.ID)
			}
		}
		return nil, domain.NewError(domain.ErrCodeCycleDetected, "graph contains a cycle involving nodes %v", stuck)
	}

	return &ExecutionPlan{
		Order:    order,
		Levels:   levels,
		Upstream: upstream,
		graph:    graph,
	}, nil
}

// ResolveInputs computes the input map for a node: the node's static
// config forms the defaults, and the outputs of its direct upstream
// nodes are merged over it in edge iteration order, so on key
// collision the later dependency wins.
func (p *ExecutionPlan) ResolveInputs(nodeID string, results map[string]domain.NodeResult) (map[string]interface{}, error) {
	inputs := make(map[string]interface{})

	if node := p.graph.Node(nodeID); node != nil {
		for k, v := range node.Config {
			inputs[k] = v
		}
	}

	for _, dep := range p.Upstream[nodeID] {
		result, ok := results[dep]
		if !ok || result.Output == nil {
			continue
		}
		if err := mergo.Merge(&inputs, result.Output, mergo.WithOverride); err != nil {
			return nil, domain.WrapError(domain.ErrCodeNodeExecutionFailed, err,
				"merging output of node %s into inputs of node %s", dep, nodeID)
		}
	}

	return inputs, nil
}
