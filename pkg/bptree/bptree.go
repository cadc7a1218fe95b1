// File: bptree.go
package bptree

import (
	"bytes"
	"cmp"
	"sort"
	"sync"
)

// DefaultOrder is the fallback branching factor if a user-supplied order is too small.
const DefaultOrder = 4

// Compare orders two keys, returning <0, 0 or >0.
type Compare[K any] func(a, b K) int

// BPlusTree is an ordered map. Leaves are doubly linked so the tree can be
// walked in either direction from any position.
//
// Deletion removes keys from their leaf without rebalancing. Separator keys in
// internal nodes stay valid as routing bounds, and empty leaves are skipped
// during navigation.
type BPlusTree[K any, V any] struct {
	mu     sync.RWMutex
	root   *node[K, V]
	cmp    Compare[K]
	order  int
	height int
	size   int
}

// node represents both internal and leaf nodes in the B+Tree.
type node[K any, V any] struct {
	isLeaf   bool
	keys     []K
	children []*node[K, V] // used if !isLeaf
	values   []V           // used if isLeaf
	parent   *node[K, V]
	next     *node[K, V] // leaf links, for range scans
	prev     *node[K, V]
}

// NewBPlusTree creates a tree over an ordered key type.
// If the specified order < 3, we fall back to DefaultOrder.
func NewBPlusTree[K cmp.Ordered, V any](order int) *BPlusTree[K, V] {
	return NewWithCompare[K, V](order, cmp.Compare[K])
}

// NewBytesTree creates a tree keyed by byte slices in lexicographic order.
func NewBytesTree[V any](order int) *BPlusTree[[]byte, V] {
	return NewWithCompare[[]byte, V](order, bytes.Compare)
}

// NewWithCompare creates a tree ordered by c.
func NewWithCompare[K any, V any](order int, c Compare[K]) *BPlusTree[K, V] {
	if order < 3 {
		order = DefaultOrder
	}
	return &BPlusTree[K, V]{
		root:   newLeaf[K, V](order),
		cmp:    c,
		order:  order,
		height: 1,
	}
}

func newLeaf[K any, V any](order int) *node[K, V] {
	return &node[K, V]{
		isLeaf: true,
		keys:   make([]K, 0, order+1),
		values: make([]V, 0, order+1),
	}
}

// Height returns the number of levels in the tree.
func (tree *BPlusTree[K, V]) Height() int {
	tree.mu.RLock()
	defer tree.mu.RUnlock()
	return tree.height
}

// Len returns the number of keys stored.
func (tree *BPlusTree[K, V]) Len() int {
	tree.mu.RLock()
	defer tree.mu.RUnlock()
	return tree.size
}

// Clear removes every key.
func (tree *BPlusTree[K, V]) Clear() {
	tree.mu.Lock()
	defer tree.mu.Unlock()
	tree.root = newLeaf[K, V](tree.order)
	tree.height = 1
	tree.size = 0
}

// childIndex determines which child pointer to follow in an internal node.
func (tree *BPlusTree[K, V]) childIndex(keys []K, key K) int {
	return sort.Search(len(keys), func(i int) bool { return tree.cmp(key, keys[i]) < 0 })
}

// lowerBound returns the first index in keys that is >= key.
func (tree *BPlusTree[K, V]) lowerBound(keys []K, key K) int {
	return sort.Search(len(keys), func(i int) bool { return tree.cmp(keys[i], key) >= 0 })
}

// upperBound returns the first index in keys that is > key.
func (tree *BPlusTree[K, V]) upperBound(keys []K, key K) int {
	return sort.Search(len(keys), func(i int) bool { return tree.cmp(keys[i], key) > 0 })
}

func (tree *BPlusTree[K, V]) findLeaf(key K) *node[K, V] {
	current := tree.root
	for !current.isLeaf {
		current = current.children[tree.childIndex(current.keys, key)]
	}
	return current
}

// Search locates the value associated with `key` (if it exists).
func (tree *BPlusTree[K, V]) Search(key K) (V, bool) {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	leaf := tree.findLeaf(key)
	if i := tree.lowerBound(leaf.keys, key); i < len(leaf.keys) && tree.cmp(leaf.keys[i], key) == 0 {
		return leaf.values[i], true
	}
	var zero V
	return zero, false
}

// Insert adds or replaces a (key, value) pair. It reports whether the key was new.
func (tree *BPlusTree[K, V]) Insert(key K, value V) bool {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	leaf := tree.findLeaf(key)
	idx := tree.lowerBound(leaf.keys, key)
	if idx < len(leaf.keys) && tree.cmp(leaf.keys[idx], key) == 0 {
		leaf.values[idx] = value
		return false
	}

	var zeroK K
	var zeroV V
	leaf.keys = append(leaf.keys, zeroK)
	leaf.values = append(leaf.values, zeroV)
	copy(leaf.keys[idx+1:], leaf.keys[idx:])
	copy(leaf.values[idx+1:], leaf.values[idx:])
	leaf.keys[idx] = key
	leaf.values[idx] = value
	tree.size++

	if len(leaf.keys) > tree.order {
		tree.splitLeaf(leaf)
	}
	return true
}

// Delete removes key, reporting whether it was present.
func (tree *BPlusTree[K, V]) Delete(key K) bool {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	leaf := tree.findLeaf(key)
	idx := tree.lowerBound(leaf.keys, key)
	if idx >= len(leaf.keys) || tree.cmp(leaf.keys[idx], key) != 0 {
		return false
	}
	leaf.keys = append(leaf.keys[:idx], leaf.keys[idx+1:]...)
	leaf.values = append(leaf.values[:idx], leaf.values[idx+1:]...)
	tree.size--
	if tree.size == 0 {
		tree.root = newLeaf[K, V](tree.order)
		tree.height = 1
	}
	return true
}

// splitLeaf handles splitting a leaf node that has overflowed.
func (tree *BPlusTree[K, V]) splitLeaf(leaf *node[K, V]) {
	mid := len(leaf.keys) / 2

	sibling := &node[K, V]{
		isLeaf: true,
		keys:   append(make([]K, 0, tree.order+1), leaf.keys[mid:]...),
		values: append(make([]V, 0, tree.order+1), leaf.values[mid:]...),
		next:   leaf.next,
		prev:   leaf,
		parent: leaf.parent,
	}
	if leaf.next != nil {
		leaf.next.prev = sibling
	}

	leaf.keys = leaf.keys[:mid:mid]
	leaf.values = leaf.values[:mid:mid]
	leaf.next = sibling

	tree.insertIntoParent(leaf, sibling.keys[0], sibling)
}

// insertIntoParent links right after left under separator key, growing a new
// root when left has no parent.
func (tree *BPlusTree[K, V]) insertIntoParent(left *node[K, V], key K, right *node[K, V]) {
	parent := left.parent
	if parent == nil {
		root := &node[K, V]{
			keys:     []K{key},
			children: []*node[K, V]{left, right},
		}
		left.parent = root
		right.parent = root
		tree.root = root
		tree.height++
		return
	}

	idx := 0
	for idx < len(parent.children) && parent.children[idx] != left {
		idx++
	}

	var zeroK K
	parent.keys = append(parent.keys, zeroK)
	copy(parent.keys[idx+1:], parent.keys[idx:])
	parent.keys[idx] = key

	parent.children = append(parent.children, nil)
	copy(parent.children[idx+2:], parent.children[idx+1:])
	parent.children[idx+1] = right
	right.parent = parent

	if len(parent.keys) > tree.order {
		tree.splitInternal(parent)
	}
}

// splitInternal handles splitting an internal node that has overflowed.
func (tree *BPlusTree[K, V]) splitInternal(internal *node[K, V]) {
	mid := len(internal.keys) / 2
	splitKey := internal.keys[mid]

	sibling := &node[K, V]{
		keys:     append([]K{}, internal.keys[mid+1:]...),
		children: append([]*node[K, V]{}, internal.children[mid+1:]...),
		parent:   internal.parent,
	}
	for _, child := range sibling.children {
		child.parent = sibling
	}

	internal.keys = internal.keys[:mid:mid]
	internal.children = internal.children[: mid+1 : mid+1]

	tree.insertIntoParent(internal, splitKey, sibling)
}

// First returns the smallest key.
func (tree *BPlusTree[K, V]) First() (K, V, bool) {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	n := tree.root
	for !n.isLeaf {
		n = n.children[0]
	}
	return tree.forwardFrom(n, 0)
}

// Last returns the largest key.
func (tree *BPlusTree[K, V]) Last() (K, V, bool) {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	n := tree.root
	for !n.isLeaf {
		n = n.children[len(n.children)-1]
	}
	return tree.backwardFrom(n, len(n.keys)-1)
}

// SeekGE returns the first key >= key.
func (tree *BPlusTree[K, V]) SeekGE(key K) (K, V, bool) {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	leaf := tree.findLeaf(key)
	return tree.forwardFrom(leaf, tree.lowerBound(leaf.keys, key))
}

// SeekGT returns the first key > key.
func (tree *BPlusTree[K, V]) SeekGT(key K) (K, V, bool) {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	leaf := tree.findLeaf(key)
	return tree.forwardFrom(leaf, tree.upperBound(leaf.keys, key))
}

// SeekLE returns the last key <= key.
func (tree *BPlusTree[K, V]) SeekLE(key K) (K, V, bool) {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	leaf := tree.findLeaf(key)
	return tree.backwardFrom(leaf, tree.upperBound(leaf.keys, key)-1)
}

// SeekLT returns the last key < key.
func (tree *BPlusTree[K, V]) SeekLT(key K) (K, V, bool) {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	leaf := tree.findLeaf(key)
	return tree.backwardFrom(leaf, tree.lowerBound(leaf.keys, key)-1)
}

// forwardFrom returns the entry at index i of n, following next links past
// the end of a leaf and over empty leaves.
func (tree *BPlusTree[K, V]) forwardFrom(n *node[K, V], i int) (K, V, bool) {
	for n != nil {
		if i < len(n.keys) {
			return n.keys[i], n.values[i], true
		}
		n, i = n.next, 0
	}
	var zk K
	var zv V
	return zk, zv, false
}

func (tree *BPlusTree[K, V]) backwardFrom(n *node[K, V], i int) (K, V, bool) {
	for n != nil {
		if i >= 0 && i < len(n.keys) {
			return n.keys[i], n.values[i], true
		}
		n = n.prev
		if n != nil {
			i = len(n.keys) - 1
		}
	}
	var zk K
	var zv V
	return zk, zv, false
}

// Ascend calls fn for every entry in key order until fn returns false.
// fn must not modify the tree.
func (tree *BPlusTree[K, V]) Ascend(fn func(key K, value V) bool) {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	n := tree.root
	for !n.isLeaf {
		n = n.children[0]
	}
	for ; n != nil; n = n.next {
		for i := range n.keys {
			if !fn(n.keys[i], n.values[i]) {
				return
			}
		}
	}
}
