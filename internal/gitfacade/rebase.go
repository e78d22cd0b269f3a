package gitfacade

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
)

type blobRef struct {
	hash plumbing.Hash
	mode filemode.FileMode
}

// Rebase replays sessionBranch's commits (those not already reachable
// from ontoBranch) on top of ontoBranch's tip, preserving each original
// commit's author and message. It does not move any ref; callers apply
// the returned hash with SetTarget once satisfied with the result.
//
// Conflicts are detected up front by comparing the set of paths the
// session branch touched since the merge-base against the set ontoBranch
// touched since the same point: any overlap (outside .schaltwerk/**)
// aborts the rebase before any commit is replayed.
func (f *Facade) Rebase(sessionBranch, ontoBranch string) (plumbing.Hash, error) {
	sessionRef, err := f.repo.Reference(plumbing.NewBranchReferenceName(sessionBranch), false)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve %s: %w", sessionBranch, errs.ErrRefNotFound)
	}
	ontoRef, err := f.repo.Reference(plumbing.NewBranchReferenceName(ontoBranch), false)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve %s: %w", ontoBranch, errs.ErrRefNotFound)
	}

	sessionCommit, err := f.repo.CommitObject(sessionRef.Hash())
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("load %s: %w: %v", sessionBranch, errs.ErrIO, err)
	}
	ontoCommit, err := f.repo.CommitObject(ontoRef.Hash())
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("load %s: %w: %v", ontoBranch, errs.ErrIO, err)
	}

	if IsAncestor(f, ontoCommit, sessionCommit) {
		return sessionCommit.Hash, nil
	}

	bases, err := sessionCommit.MergeBase(ontoCommit)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("compute merge base: %w: %v", errs.ErrIO, err)
	}
	if len(bases) == 0 {
		return plumbing.ZeroHash, fmt.Errorf("no common ancestor between %s and %s: %w", sessionBranch, ontoBranch, errs.ErrCorrupt)
	}
	base := bases[0]

	baseTree, err := base.Tree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("load base tree: %w: %v", errs.ErrIO, err)
	}
	sessionTree, err := sessionCommit.Tree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("load session tree: %w: %v", errs.ErrIO, err)
	}
	ontoTree, err := ontoCommit.Tree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("load onto tree: %w: %v", errs.ErrIO, err)
	}

	sessionTouched, err := changedPaths(baseTree, sessionTree)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	ontoTouched, err := changedPaths(baseTree, ontoTree)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	var conflicts []string
	for p := range sessionTouched {
		if ontoTouched[p] && !isInternalStatePath(p) {
			conflicts = append(conflicts, p)
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		if len(conflicts) > 5 {
			conflicts = conflicts[:5]
		}
		return plumbing.ZeroHash, &errs.MergeConflictError{Paths: conflicts}
	}

	commits, err := commitsBetween(f.repo, base.Hash, sessionCommit.Hash)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	current, err := flattenTree(ontoTree)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	newParent := ontoCommit.Hash
	for _, c := range commits {
		parentTree := &object.Tree{}
		if c.NumParents() > 0 {
			p, err := c.Parent(0)
			if err != nil {
				return plumbing.ZeroHash, fmt.Errorf("load parent of %s: %w: %v", c.Hash, errs.ErrIO, err)
			}
			parentTree, err = p.Tree()
			if err != nil {
				return plumbing.ZeroHash, fmt.Errorf("load parent tree of %s: %w: %v", c.Hash, errs.ErrIO, err)
			}
		}
		cTree, err := c.Tree()
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("load tree of %s: %w: %v", c.Hash, errs.ErrIO, err)
		}
		changes, err := parentTree.Diff(cTree)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("diff commit %s: %w: %v", c.Hash, errs.ErrIO, err)
		}
		for _, ch := range changes {
			path := changePath(ch)
			if ch.To.Name == "" {
				delete(current, path)
				continue
			}
			current[path] = blobRef{hash: ch.To.TreeEntry.Hash, mode: ch.To.TreeEntry.Mode}
		}

		newTreeHash, err := buildTree(f.repo.Storer, current)
		if err != nil {
			return plumbing.ZeroHash, err
		}

		newCommit := &object.Commit{
			Author:       c.Author,
			Committer:    c.Committer,
			Message:      c.Message,
			TreeHash:     newTreeHash,
			ParentHashes: []plumbing.Hash{newParent},
		}
		obj := f.repo.Storer.NewEncodedObject()
		obj.SetType(plumbing.CommitObject)
		if err := newCommit.Encode(obj); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("encode replayed commit: %w: %v", errs.ErrIO, err)
		}
		newHash, err := f.repo.Storer.SetEncodedObject(obj)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("store replayed commit: %w: %v", errs.ErrIO, err)
		}
		newParent = newHash
	}

	return newParent, nil
}

// commitsBetween returns the commits reachable from head but not from
// base, oldest first (the order rebase must replay them in).
func commitsBetween(repo *git.Repository, base, head plumbing.Hash) ([]*object.Commit, error) {
	iter, err := repo.Log(&git.LogOptions{From: head})
	if err != nil {
		return nil, fmt.Errorf("walk commits from %s: %w: %v", head, errs.ErrIO, err)
	}
	defer iter.Close()

	var reversed []*object.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if c.Hash == base {
			return storer.ErrStop
		}
		reversed = append(reversed, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate commits: %w: %v", errs.ErrIO, err)
	}

	out := make([]*object.Commit, len(reversed))
	for i, c := range reversed {
		out[len(reversed)-1-i] = c
	}
	return out, nil
}

func changedPaths(from, to *object.Tree) (map[string]bool, error) {
	changes, err := from.Diff(to)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w: %v", errs.ErrIO, err)
	}
	out := make(map[string]bool, len(changes))
	for _, c := range changes {
		if p := changePath(c); p != "" {
			out[p] = true
		}
	}
	return out, nil
}

func flattenTree(tree *object.Tree) (map[string]blobRef, error) {
	out := make(map[string]blobRef)
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err != nil {
			break
		}
		if entry.Mode == filemode.Dir {
			continue
		}
		out[name] = blobRef{hash: entry.Hash, mode: entry.Mode}
	}
	return out, nil
}

type dirNode struct {
	files map[string]blobRef
	dirs  map[string]*dirNode
}

func newDirNode() *dirNode {
	return &dirNode{files: map[string]blobRef{}, dirs: map[string]*dirNode{}}
}

func buildTree(storer interface {
	NewEncodedObject() plumbing.EncodedObject
	SetEncodedObject(plumbing.EncodedObject) (plumbing.Hash, error)
}, flat map[string]blobRef) (plumbing.Hash, error) {
	root := newDirNode()
	for path, ref := range flat {
		parts := strings.Split(path, "/")
		node := root
		for _, dir := range parts[:len(parts)-1] {
			child, ok := node.dirs[dir]
			if !ok {
				child = newDirNode()
				node.dirs[dir] = child
			}
			node = child
		}
		node.files[parts[len(parts)-1]] = ref
	}
	return writeDirNode(storer, root)
}

func writeDirNode(storer interface {
	NewEncodedObject() plumbing.EncodedObject
	SetEncodedObject(plumbing.EncodedObject) (plumbing.Hash, error)
}, node *dirNode) (plumbing.Hash, error) {
	var entries []object.TreeEntry
	for name, ref := range node.files {
		entries = append(entries, object.TreeEntry{Name: name, Mode: ref.mode, Hash: ref.hash})
	}
	for name, child := range node.dirs {
		hash, err := writeDirNode(storer, child)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: hash})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	tree := &object.Tree{Entries: entries}
	obj := storer.NewEncodedObject()
	obj.SetType(plumbing.TreeObject)
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode tree: %w: %v", errs.ErrIO, err)
	}
	return storer.SetEncodedObject(obj)
}
