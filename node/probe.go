package node

// BranchLoad returns the largest mailbox depth of any node reachable from
// root through SubscriberLister links. Nodes already visited are skipped, so
// caller-built cycles terminate. The result is advisory only.
func BranchLoad(root any) int {
	visited := make(map[any]struct{})
	if isComparable(root) {
		visited[root] = struct{}{}
	}
	return branchLoad(root, visited)
}

func branchLoad(n any, visited map[any]struct{}) int {
	lister, ok := n.(SubscriberLister)
	if !ok {
		return 0
	}

	load := 0
	for _, s := range lister.Subscribers() {
		if !isComparable(s) {
			load = max(load, MailboxDepth(s))
			continue
		}
		if _, seen := visited[s]; seen {
			continue
		}
		visited[s] = struct{}{}

		load = max(load, MailboxDepth(s), branchLoad(s, visited))
	}
	return load
}
