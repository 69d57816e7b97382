package packet

// compressionNode is one entry in the outgoing compression tree (spec
// §4.10): the label sequence of a name previously written to the output
// buffer, the wire offset it was written at, and a parent link to the node
// for its immediate parent zone (nil if that suffix was never registered on
// its own).
type compressionNode struct {
	labels       [][]byte
	offset       int
	parent       *compressionNode
	left, right  *compressionNode
}

// compressionTree is an unbalanced BST ordered by zone-suffix comparison
// (compareNamesByZone): siblings under the same parent zone sort next to
// each other, so a name's ancestors tend to sit along its own search path.
// This is one of the acceptable substitutes the design explicitly allows
// for the BST described in the original ("a skip-list, a treap, or a trie
// are all acceptable; the observable contract is only 'find best ancestor
// by label-count'"); lookup here tracks the best ancestor seen along the
// descent instead of an explicit post-hoc parent walk.
type compressionTree struct {
	root *compressionNode
}

const maxCompressionOffset = 0x3FFF

func splitLabels(name []byte) [][]byte {
	var labels [][]byte
	i := 0
	for i < len(name) {
		l := int(name[i])
		if l == 0 {
			break
		}
		labels = append(labels, name[i+1:i+1+l])
		i += 1 + l
	}
	return labels
}

func asciiCompareFold(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 32
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 32
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// compareNamesByZone compares two label sequences (most-specific label
// first, as returned by splitLabels) from the root label inward, so that
// names sharing a zone suffix sort adjacently. matched is the number of
// trailing (root-ward) labels that compared equal.
func compareNamesByZone(a, b [][]byte) (cmp, matched int) {
	ai, bi := len(a)-1, len(b)-1
	for ai >= 0 && bi >= 0 {
		c := asciiCompareFold(a[ai], b[bi])
		if c != 0 {
			return c, matched
		}
		matched++
		ai--
		bi--
	}
	switch {
	case len(a) == len(b):
		return 0, matched
	case len(a) < len(b):
		return -1, matched
	default:
		return 1, matched
	}
}

func (t *compressionTree) find(labels [][]byte) *compressionNode {
	n := t.root
	for n != nil {
		cmp, _ := compareNamesByZone(labels, n.labels)
		switch {
		case cmp == 0:
			return n
		case cmp < 0:
			n = n.left
		default:
			n = n.right
		}
	}
	return nil
}

func (t *compressionTree) bstInsert(node *compressionNode) {
	if t.root == nil {
		t.root = node
		return
	}
	n := t.root
	for {
		cmp, _ := compareNamesByZone(node.labels, n.labels)
		if cmp == 0 {
			return
		}
		if cmp < 0 {
			if n.left == nil {
				n.left = node
				return
			}
			n = n.left
		} else {
			if n.right == nil {
				n.right = node
				return
			}
			n = n.right
		}
	}
}

// lookup returns the best compression target for labels: an exact match if
// one exists, else the most specific ancestor whose own labels are a strict
// suffix of labels. matched is the number of trailing labels the result
// shares with labels (0 if nothing usable was found).
func (t *compressionTree) lookup(labels [][]byte) (*compressionNode, int) {
	var best *compressionNode
	bestMatched := 0
	n := t.root
	for n != nil {
		cmp, matched := compareNamesByZone(labels, n.labels)
		if len(n.labels) <= matched && matched > bestMatched {
			best = n
			bestMatched = matched
		}
		if cmp == 0 {
			return n, matched
		} else if cmp < 0 {
			n = n.left
		} else {
			n = n.right
		}
	}
	return best, bestMatched
}

// insert registers labels as compressible at offset, unless the name is too
// short to be worth compressing (root or a single label) or offset no
// longer fits the 14-bit pointer field. It links the new node's parent to
// an already-registered immediate-parent-zone node, if one exists.
func (t *compressionTree) insert(labels [][]byte, offset int) *compressionNode {
	if len(labels) <= 1 || offset > maxCompressionOffset {
		return nil
	}
	if existing := t.find(labels); existing != nil {
		return existing
	}
	node := &compressionNode{labels: labels, offset: offset}
	if len(labels) > 1 {
		node.parent = t.find(labels[1:])
	}
	t.bstInsert(node)
	return node
}
