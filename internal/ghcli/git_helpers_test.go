package ghcli

import (
	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
)

// initBareLikeRepo creates a normal repository with an initial commit but
// no configured remote, the precondition ViewRepository's remote check
// must reject.
func initBareLikeRepo(dir string) (*gitfacade.Facade, error) {
	f, err := gitfacade.InitRepository(dir)
	if err != nil {
		return nil, err
	}
	if err := f.CreateInitialCommit("main", "tester", "tester@example.com"); err != nil {
		return nil, err
	}
	return f, nil
}
