package bptree_test

import (
	"sync"
	"testing"

	"github.com/ssargent/cabinetdb/pkg/bptree"
)

func TestBPlusTree_InsertAndSearch(t *testing.T) {
	tests := map[string]struct {
		tree     *bptree.BPlusTree[int, string]
		actions  []func(tree *bptree.BPlusTree[int, string])
		searches []struct {
			key      int
			expected string
			found    bool
		}
	}{
		"Insert and search integers": {
			tree: bptree.NewBPlusTree[int, string](4),
			actions: []func(tree *bptree.BPlusTree[int, string]){
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(1, "one") },
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(2, "two") },
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(3, "three") },
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(4, "four") },
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(5, "five") },
			},
			searches: []struct {
				key      int
				expected string
				found    bool
			}{
				{1, "one", true},
				{2, "two", true},
				{3, "three", true},
				{4, "four", true},
				{5, "five", true},
				{6, "", false},
			},
		},
		"Insert duplicate keys": {
			tree: bptree.NewBPlusTree[int, string](4),
			actions: []func(tree *bptree.BPlusTree[int, string]){
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(1, "one") },
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(1, "uno") },
			},
			searches: []struct {
				key      int
				expected string
				found    bool
			}{
				{1, "uno", true},
			},
		},
		"Search empty tree": {
			tree:    bptree.NewBPlusTree[int, string](4),
			actions: []func(tree *bptree.BPlusTree[int, string]){},
			searches: []struct {
				key      int
				expected string
				found    bool
			}{
				{1, "", false},
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			for _, action := range tt.actions {
				action(tt.tree)
			}
			for _, search := range tt.searches {
				value, found := tt.tree.Search(search.key)
				if found != search.found || value != search.expected {
					t.Errorf("Search(%d) = %v, %v; want %v, %v", search.key, value, found, search.expected, search.found)
				}
			}
		})
	}
}

func TestBPlusTree_Concurrency(t *testing.T) {
	tree := bptree.NewBPlusTree[int, string](4)

	// Insert keys concurrently
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tree.Insert(i, string(rune('a'+i-1)))
		}(i)
	}
	wg.Wait()

	// Search for keys concurrently
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, found := tree.Search(i); !found {
				t.Errorf("Expected to find key %d", i)
			}
		}(i)
	}
	wg.Wait()
}

func TestBPlusTree_DeleteAndLen(t *testing.T) {
	tree := bptree.NewBPlusTree[int, string](3)
	for i := 1; i <= 50; i++ {
		if !tree.Insert(i, "v") {
			t.Fatalf("Insert(%d) reported an existing key", i)
		}
	}
	if tree.Insert(10, "again") {
		t.Errorf("Insert(10) twice should report an existing key")
	}
	if tree.Len() != 50 {
		t.Fatalf("Len() = %d; want 50", tree.Len())
	}

	for i := 1; i <= 50; i += 2 {
		if !tree.Delete(i) {
			t.Errorf("Delete(%d) = false; want true", i)
		}
	}
	if tree.Delete(1) {
		t.Errorf("Delete(1) twice should report a missing key")
	}
	if tree.Len() != 25 {
		t.Fatalf("Len() = %d; want 25", tree.Len())
	}
	for i := 1; i <= 50; i++ {
		_, found := tree.Search(i)
		if found != (i%2 == 0) {
			t.Errorf("Search(%d) found = %v", i, found)
		}
	}

	var seen []int
	tree.Ascend(func(k int, _ string) bool {
		seen = append(seen, k)
		return true
	})
	if len(seen) != 25 || seen[0] != 2 || seen[24] != 50 {
		t.Errorf("Ascend visited %v", seen)
	}
}

func TestBPlusTree_Navigation(t *testing.T) {
	tree := bptree.NewBytesTree[int](3)
	for i, k := range []string{"b", "d", "f", "h", "j", "l", "n"} {
		tree.Insert([]byte(k), i)
	}
	// Empty out a few leaves so navigation must skip them.
	tree.Delete([]byte("f"))
	tree.Delete([]byte("h"))

	seek := func(name string, fn func([]byte) ([]byte, int, bool), key, want string) {
		t.Helper()
		got, _, ok := fn([]byte(key))
		if want == "" {
			if ok {
				t.Errorf("%s(%q) = %q; want none", name, key, got)
			}
			return
		}
		if !ok || string(got) != want {
			t.Errorf("%s(%q) = %q, %v; want %q", name, key, got, ok, want)
		}
	}

	seek("SeekGE", tree.SeekGE, "d", "d")
	seek("SeekGE", tree.SeekGE, "e", "j")
	seek("SeekGE", tree.SeekGE, "o", "")
	seek("SeekGT", tree.SeekGT, "d", "j")
	seek("SeekGT", tree.SeekGT, "a", "b")
	seek("SeekLE", tree.SeekLE, "i", "d")
	seek("SeekLE", tree.SeekLE, "n", "n")
	seek("SeekLE", tree.SeekLE, "a", "")
	seek("SeekLT", tree.SeekLT, "j", "d")
	seek("SeekLT", tree.SeekLT, "b", "")
	seek("SeekLT", tree.SeekLT, "z", "n")

	first, _, ok := tree.First()
	if !ok || string(first) != "b" {
		t.Errorf("First() = %q, %v", first, ok)
	}
	last, _, ok := tree.Last()
	if !ok || string(last) != "n" {
		t.Errorf("Last() = %q, %v", last, ok)
	}

	tree.Clear()
	if _, _, ok := tree.First(); ok {
		t.Errorf("First() on cleared tree should find nothing")
	}
	if tree.Height() != 1 {
		t.Errorf("Height() after Clear = %d", tree.Height())
	}
}
