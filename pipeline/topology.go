package pipeline

import (
	"slices"

	"github.com/c360/nodeflow/node"
)

// Topology is a point-in-time view of the pipeline graph.
type Topology struct {
	Nodes []NodeInfo `json:"nodes"`
	Edges []Edge     `json:"edges"`
	// Clusters are weakly connected groups of nodes.
	Clusters [][]string `json:"clusters"`
	// Isolated nodes have no edges at all.
	Isolated []string `json:"isolated"`
	// Status is "healthy" when every node is connected, "warnings" otherwise.
	Status string `json:"status"`
}

// NodeInfo describes one registered node.
type NodeInfo struct {
	Name       string   `json:"name"`
	Producer   bool     `json:"producer"`
	Consumer   bool     `json:"consumer"`
	Running    bool     `json:"running"`
	Upstream   []string `json:"upstream,omitempty"`
	Downstream []string `json:"downstream,omitempty"`
}

// Topology analyses the current graph.
func (p *Pipeline) Topology() Topology {
	p.mu.RLock()
	defer p.mu.RUnlock()

	upstream := make(map[string][]string)
	downstream := make(map[string][]string)
	adj := make(map[string][]string)
	for _, e := range p.edges {
		downstream[e.From] = append(downstream[e.From], e.To)
		upstream[e.To] = append(upstream[e.To], e.From)
		adj[e.From] = append(adj[e.From], e.To)
		adj[e.To] = append(adj[e.To], e.From)
	}

	topo := Topology{
		Nodes:    make([]NodeInfo, 0, len(p.order)),
		Edges:    slices.Clone(p.edges),
		Clusters: [][]string{},
		Isolated: []string{},
		Status:   "healthy",
	}
	if topo.Edges == nil {
		topo.Edges = []Edge{}
	}

	for _, name := range p.order {
		n := p.nodes[name]
		_, isProducer := n.(node.Producer)
		_, isConsumer := n.(node.Consumer)
		info := NodeInfo{
			Name:       name,
			Producer:   isProducer,
			Consumer:   isConsumer,
			Running:    n.IsRunning(),
			Upstream:   upstream[name],
			Downstream: downstream[name],
		}
		topo.Nodes = append(topo.Nodes, info)
		if len(adj[name]) == 0 {
			topo.Isolated = append(topo.Isolated, name)
		}
	}

	visited := make(map[string]bool, len(p.order))
	for _, name := range p.order {
		if visited[name] {
			continue
		}
		var cluster []string
		stack := []string{name}
		visited[name] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cluster = append(cluster, cur)
			for _, next := range adj[cur] {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
		slices.Sort(cluster)
		topo.Clusters = append(topo.Clusters, cluster)
	}

	if len(topo.Isolated) > 0 {
		topo.Status = "warnings"
	}
	return topo
}
