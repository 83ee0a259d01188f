// market/instruments.go
package market

import "strings"

// AssetType is the kind of instrument a trade was placed in.
type AssetType string

const (
	Stock   AssetType = "stock"
	Options AssetType = "options"
)

// OptionType distinguishes calls from puts.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ContractMultiplier is the number of shares one option contract controls.
const ContractMultiplier = 100.0

type AssetMeta struct {
	Name       string
	Multiplier float64
}

var Assets = map[AssetType]AssetMeta{
	Stock: {
		Name:       "stock",
		Multiplier: 1,
	},
	Options: {
		Name:       "options",
		Multiplier: ContractMultiplier,
	},
}

// Multiplier returns the dollar multiplier applied to price x shares for
// the asset type. Unknown types are treated as stock.
func Multiplier(a AssetType) float64 {
	if a == Options {
		return ContractMultiplier
	}
	return 1
}

// ParseAssetType accepts the stored names plus a few common spellings.
func ParseAssetType(s string) (AssetType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stock", "stocks", "equity", "":
		return Stock, true
	case "options", "option", "opt":
		return Options, true
	}
	return "", false
}

// ParseOptionType accepts "call", "put", "c" or "p".
func ParseOptionType(s string) (OptionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return Call, true
	case "put", "p":
		return Put, true
	}
	return "", false
}
