package zkstate

import (
	"strconv"
	"strings"

	"github.com/ziesha-go/ledger/pkg/types"
)

// locatorKey renders a types.Locator into the dash-joined path component
// used by the local_value/local_tree_aux key families (spec §6 "{cid}-
// {locator}"). The empty locator (the tree root) renders as "_".
func locatorKey(l types.Locator) string {
	if len(l) == 0 {
		return "_"
	}
	parts := make([]string, len(l))
	for i, idx := range l {
		parts[i] = strconv.FormatUint(idx, 10)
	}
	return strings.Join(parts, "-")
}
