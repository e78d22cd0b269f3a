package gitfacade

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	fdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
)

// FileDiff summarizes one changed file, the per-file row the diff
// summary endpoint lists before a caller drills into its content.
type FileDiff struct {
	Path         string
	ChangeType   string // "added", "modified", "deleted"
	LinesAdded   int
	LinesRemoved int
}

// DiffLine is one line of a unified diff for a single file.
type DiffLine struct {
	Op      string // "context", "add", "remove"
	Content string
}

// DiffSummary lists every file changed between HEAD and the merge base
// of HEAD and parentBranch, the same base CalculateGitStatsFast diffs
// against, so the per-file list and the aggregate stats never disagree.
func (f *Facade) DiffSummary(parentBranch string) ([]FileDiff, error) {
	baseTree, headTree, err := f.diffTrees(parentBranch)
	if err != nil {
		return nil, err
	}

	patch, err := baseTree.Patch(headTree)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w: %v", errs.ErrIO, err)
	}

	var files []FileDiff
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		fd := FileDiff{}
		switch {
		case from == nil && to != nil:
			fd.Path = to.Path()
			fd.ChangeType = "added"
		case from != nil && to == nil:
			fd.Path = from.Path()
			fd.ChangeType = "deleted"
		default:
			fd.Path = to.Path()
			fd.ChangeType = "modified"
		}
		for _, chunk := range fp.Chunks() {
			lines := countLines(chunk.Content())
			switch chunk.Type() {
			case fdiff.Add:
				fd.LinesAdded += lines
			case fdiff.Delete:
				fd.LinesRemoved += lines
			}
		}
		files = append(files, fd)
	}
	return files, nil
}

// DiffFile returns the unified diff lines for one path between HEAD and
// the merge base of HEAD and parentBranch.
func (f *Facade) DiffFile(parentBranch, path string) ([]DiffLine, error) {
	baseTree, headTree, err := f.diffTrees(parentBranch)
	if err != nil {
		return nil, err
	}

	patch, err := baseTree.Patch(headTree)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w: %v", errs.ErrIO, err)
	}

	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		p := ""
		if to != nil {
			p = to.Path()
		} else if from != nil {
			p = from.Path()
		}
		if p != path {
			continue
		}
		var lines []DiffLine
		for _, chunk := range fp.Chunks() {
			op := "context"
			switch chunk.Type() {
			case fdiff.Add:
				op = "add"
			case fdiff.Delete:
				op = "remove"
			}
			for _, l := range splitLines(chunk.Content()) {
				lines = append(lines, DiffLine{Op: op, Content: l})
			}
		}
		return lines, nil
	}
	return nil, fmt.Errorf("path %q not changed: %w", path, errs.ErrNotFound)
}

func (f *Facade) diffTrees(parentBranch string) (baseTree, headTree *object.Tree, err error) {
	head, err := f.repo.Head()
	if err != nil {
		return nil, nil, fmt.Errorf("read HEAD: %w: %v", errs.ErrIO, err)
	}
	headCommit, err := f.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, nil, fmt.Errorf("load HEAD commit: %w: %v", errs.ErrIO, err)
	}
	parentRef, err := f.repo.Reference(plumbing.NewBranchReferenceName(parentBranch), false)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve parent branch %s: %w", parentBranch, errs.ErrRefNotFound)
	}
	parentCommit, err := f.repo.CommitObject(parentRef.Hash())
	if err != nil {
		return nil, nil, fmt.Errorf("load parent commit: %w: %v", errs.ErrIO, err)
	}

	bases, err := headCommit.MergeBase(parentCommit)
	if err != nil {
		return nil, nil, fmt.Errorf("compute merge base: %w: %v", errs.ErrIO, err)
	}
	base := headCommit
	if len(bases) > 0 {
		base = bases[0]
	}

	bt, err := base.Tree()
	if err != nil {
		return nil, nil, fmt.Errorf("load base tree: %w: %v", errs.ErrIO, err)
	}
	ht, err := headCommit.Tree()
	if err != nil {
		return nil, nil, fmt.Errorf("load head tree: %w: %v", errs.ErrIO, err)
	}
	return bt, ht, nil
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	if len(s) > 0 && s[len(s)-1] == '\n' {
		n--
	}
	return n
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
