package conversion

import "fmt"

// DetailLevel bounds how many derived columns the table builder fills in.
// Columns a level omits are left zero; columns it computes are identical
// across levels.
type DetailLevel int

const (
	// DetailFull computes every column. Asset rows sum trade counts and
	// last trade IDs across an asset's pairs.
	DetailFull DetailLevel = iota
	// DetailMinimal drops the raw bookkeeping fields (previous close, last
	// volume, weighted average price, absolute price change, trade IDs,
	// open time). Asset rows take the largest trade count.
	DetailMinimal
	// DetailExtraMinimal additionally skips USDT high/low and every traded
	// bid/ask aggregate. Asset rows carry the first pair's raw bid/ask and
	// price change instead of traded ones.
	DetailExtraMinimal
)

func (l DetailLevel) String() string {
	switch l {
	case DetailFull:
		return "full"
	case DetailMinimal:
		return "minimal"
	case DetailExtraMinimal:
		return "extra_minimal"
	default:
		return fmt.Sprintf("detail(%d)", int(l))
	}
}

// ParseDetailLevel parses the configuration spelling of a level.
func ParseDetailLevel(s string) (DetailLevel, error) {
	switch s {
	case "", "full":
		return DetailFull, nil
	case "minimal":
		return DetailMinimal, nil
	case "extra_minimal":
		return DetailExtraMinimal, nil
	}
	return DetailFull, fmt.Errorf("conversion: unknown detail level %q", s)
}
