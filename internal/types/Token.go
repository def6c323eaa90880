/*

This is a custom type for wallet token balances, used by the recovery
sweep and the executor's list-all-tokens surface.

*/

package types

// TokenBalance is one non-zero SPL token account in the wallet.
type TokenBalance struct {
	Mint     string  `json:"mint"`
	Symbol   string  `json:"symbol,omitempty"`
	Amount   uint64  `json:"amount"`   // raw units
	Decimals int     `json:"decimals"` // e.g. 9 for WSOL
	UIAmount float64 `json:"ui_amount"`
}

// VelocitySample is a single point-in-time observation recorded per pool
// on every scan cycle; the velocity tracker keeps a bounded ring of them.
type VelocitySample struct {
	Timestamp int64   `json:"ts"` // unix seconds
	Volume24h float64 `json:"volume_24h"`
	TVL       float64 `json:"tvl"`
	Price     float64 `json:"price"`
}

// LPValue is an on-chain valuation of a position's LP receipt balance.
type LPValue struct {
	ValueSOL   float64 `json:"value_sol"`
	PriceRatio float64 `json:"price_ratio"`
	LPBalance  uint64  `json:"lp_balance"`
}
