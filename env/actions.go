package env

import (
	"strings"

	"github.com/smanolloff/qwop-gym/types"
)

// redundant key combinations dropped by the reduced action set.
var redundant = map[types.CommandFlags]bool{
	types.CmdKeyQ | types.CmdKeyO:                                 true,
	types.CmdKeyW | types.CmdKeyP:                                 true,
	types.CmdKeyQ | types.CmdKeyW | types.CmdKeyO:                 true,
	types.CmdKeyQ | types.CmdKeyW | types.CmdKeyP:                 true,
	types.CmdKeyQ | types.CmdKeyO | types.CmdKeyP:                 true,
	types.CmdKeyW | types.CmdKeyO | types.CmdKeyP:                 true,
	types.CmdKeyQ | types.CmdKeyW | types.CmdKeyO | types.CmdKeyP: true,
}

// buildActions lists key combinations ordered by size, then
// lexicographically by key: none, Q, W, O, P, QW, QO, QP, WO, WP, OP, ...
func buildActions(reduced bool) []types.CommandFlags {
	var out []types.CommandFlags
	for size := 0; size <= len(types.Keys); size++ {
		combinations(types.Keys[:], size, 0, func(flags types.CommandFlags) {
			if reduced && redundant[flags] {
				return
			}
			out = append(out, flags)
		})
	}
	return out
}

func combinations(keys []types.Key, size int, acc types.CommandFlags, emit func(types.CommandFlags)) {
	if size == 0 {
		emit(acc)
		return
	}
	for i := 0; i <= len(keys)-size; i++ {
		combinations(keys[i+1:], size-1, acc|keys[i].Flag(), emit)
	}
}

// ActionName returns the keys of an action, e.g. "QW", or "none".
func ActionName(flags types.CommandFlags) string {
	var b strings.Builder
	for _, k := range types.Keys {
		if flags.Has(k.Flag()) {
			b.WriteString(k.String())
		}
	}
	if b.Len() == 0 {
		return "none"
	}
	return b.String()
}
