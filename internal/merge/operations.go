package merge

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
)

// performSquash rebases the session branch onto its parent if needed,
// then collapses the rebased commits into a single new commit on the
// parent branch. The session branch is retargeted to the squash commit
// so a later diff between the two branches is empty.
func performSquash(mc *mergeContext, message string) (*Outcome, error) {
	f, err := gitfacade.Open(mc.repoPath)
	if err != nil {
		return nil, err
	}

	rebasedHash, err := f.Rebase(mc.sessionBranch, mc.parentBranch)
	if err != nil {
		return nil, err
	}

	rebasedCommit, err := f.Repository().CommitObject(rebasedHash)
	if err != nil {
		return nil, fmt.Errorf("load rebased commit %s: %w: %v", rebasedHash, errs.ErrIO, err)
	}

	sig := gitfacade.Signature(DefaultAuthorName, DefaultAuthorEmail)
	squashCommit := &object.Commit{
		Author:       *sig,
		Committer:    *sig,
		Message:      message,
		TreeHash:     rebasedCommit.TreeHash,
		ParentHashes: []plumbing.Hash{mc.parentOID},
	}
	obj := f.Repository().Storer.NewEncodedObject()
	obj.SetType(plumbing.CommitObject)
	if err := squashCommit.Encode(obj); err != nil {
		return nil, fmt.Errorf("encode squash commit: %w: %v", errs.ErrIO, err)
	}
	squashHash, err := f.Repository().Storer.SetEncodedObject(obj)
	if err != nil {
		return nil, fmt.Errorf("store squash commit: %w: %v", errs.ErrIO, err)
	}

	if err := advanceRefs(f, mc, squashHash); err != nil {
		return nil, err
	}

	return &Outcome{
		SessionBranch: mc.sessionBranch,
		ParentBranch:  mc.parentBranch,
		NewCommit:     squashHash.String(),
		Mode:          Squash,
	}, nil
}

// performReapply rebases the session branch onto its parent if needed,
// then fast-forwards the parent directly to the rebased tip, preserving
// the session's individual commits instead of collapsing them.
func performReapply(mc *mergeContext) (*Outcome, error) {
	f, err := gitfacade.Open(mc.repoPath)
	if err != nil {
		return nil, err
	}

	rebasedHash, err := f.Rebase(mc.sessionBranch, mc.parentBranch)
	if err != nil {
		return nil, err
	}

	if err := advanceRefs(f, mc, rebasedHash); err != nil {
		return nil, err
	}

	return &Outcome{
		SessionBranch: mc.sessionBranch,
		ParentBranch:  mc.parentBranch,
		NewCommit:     rebasedHash.String(),
		Mode:          Reapply,
	}, nil
}

// advanceRefs retargets both the session branch and the parent branch to
// newHash, guarded by the fast-forward check every ref-advancing write
// must pass, and checks the parent branch out if it happens to be the
// currently active one (skipped by CheckoutHead itself when the worktree
// has tracked changes, per the working-tree safety rule).
func advanceRefs(f *gitfacade.Facade, mc *mergeContext, newHash plumbing.Hash) error {
	ok, err := f.FastForward(mc.parentOID, newHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("merge of %q into %q is not a fast-forward: %w", mc.sessionBranch, mc.parentBranch, errs.ErrNonFastForward)
	}

	if err := f.SetTarget(mc.sessionBranch, newHash); err != nil {
		return err
	}
	if err := f.SetTarget(mc.parentBranch, newHash); err != nil {
		return err
	}
	return f.CheckoutHead(mc.parentBranch)
}
