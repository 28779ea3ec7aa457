package domain

import "github.com/shopspring/decimal"

// USDTContract is the USDT (TRC20) contract address on TRON mainnet.
const USDTContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

// Transfer is one observed TRC20 transfer event. Transfers are transient
// values produced by the ledger client; they are never persisted. A
// transfer's hash becomes durable only when it is bound to a watch.
type Transfer struct {
	TxHash         string
	From           string
	To             string
	Contract       string
	RawValue       string // raw token units as reported on-chain
	Amount         decimal.Decimal
	Decimals       int32
	BlockTimestamp int64 // ms
}
