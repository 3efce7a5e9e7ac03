package store

// nonceSet remembers the most recent removal nonces in a fixed ring.
type nonceSet struct {
	ring []string
	seen map[string]struct{}
	next int
}

func newNonceSet(size int) *nonceSet {
	return &nonceSet{ring: make([]string, size), seen: make(map[string]struct{}, size)}
}

func (n *nonceSet) contains(nonce string) bool {
	_, ok := n.seen[nonce]
	return ok
}

func (n *nonceSet) add(nonce string) {
	if old := n.ring[n.next]; old != "" {
		delete(n.seen, old)
	}
	n.ring[n.next] = nonce
	n.seen[nonce] = struct{}{}
	n.next = (n.next + 1) % len(n.ring)
}
