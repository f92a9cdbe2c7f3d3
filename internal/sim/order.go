package sim

import "fmt"

// order derives the evaluation order over the arena: every node is
// placed after all of its senders. Ties between unrelated nodes break
// toward the lower construction index, so the same node list always
// yields the same order. Returns positions into nodes.
func order(nodes []Node, index map[string]int) ([]int, error) {
	n := len(nodes)
	indegree := make([]int, n)
	downstream := make([][]int, n)

	for i, node := range nodes {
		seen := make(map[string]struct{})
		for _, sender := range node.Senders() {
			j, ok := index[sender]
			if !ok {
				return nil, &UnknownSenderError{Node: node.Name(), Sender: sender}
			}
			if _, dup := seen[sender]; dup {
				return nil, &ConfigurationError{Field: "senders", Reason: fmt.Sprintf("node %q lists sender %q twice", node.Name(), sender)}
			}
			seen[sender] = struct{}{}
			downstream[j] = append(downstream[j], i)
			indegree[i]++
		}
	}

	// Kahn's algorithm, draining the ready set lowest index first.
	placed := make([]bool, n)
	out := make([]int, 0, n)
	for len(out) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !placed[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			// Everything unplaced is on or downstream of a cycle.
			var stuck []string
			for i := 0; i < n; i++ {
				if !placed[i] {
					stuck = append(stuck, nodes[i].Name())
				}
			}
			return nil, &CycleError{Nodes: stuck}
		}
		placed[next] = true
		out = append(out, next)
		for _, r := range downstream[next] {
			indegree[r]--
		}
	}
	return out, nil
}
