package txapply

import (
	"strconv"
	"strings"

	"github.com/ziesha-go/ledger/pkg/types"
)

// parseLocatorPath parses the dash-joined locator path strings
// CreateContract.InitialState and UpdateContract.Delta key their entries
// by, matching internal/zkstate's own locatorKey rendering (spec §6
// "{cid}-{locator}"). The empty/root locator is written "_".
func parseLocatorPath(s string) (types.Locator, error) {
	if s == "" || s == "_" {
		return types.Locator{}, nil
	}
	parts := strings.Split(s, "-")
	loc := make(types.Locator, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, ErrInvalidStateModel
		}
		loc[i] = v
	}
	return loc, nil
}
