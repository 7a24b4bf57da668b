package ledger

import (
	"github.com/transactionhub/ledger-api/internal/types"
)

// ClientPnl returns the client's profit and loss on the account: positive
// means the client is in profit and the broker owes the client, negative
// means the client owes the broker, zero means flat.
func ClientPnl(account *types.LedgerAccount) int64 {
	return account.ExchangeBalance - account.Funding
}

// SharePercentageFor selects the share percentage in effect for the given
// PnL sign. A flat account has no share.
func SharePercentageFor(account *types.LedgerAccount, pnl int64) int64 {
	switch {
	case pnl > 0:
		return account.ProfitSharePercentage
	case pnl < 0:
		return account.LossSharePercentage
	default:
		return 0
	}
}

// MyShare returns the sign-less magnitude of the broker's entitlement for
// the account's current PnL snapshot.
//
// Integer division truncates toward zero here; downstream figures were
// historically produced with truncating division and every call site must
// agree on the same result.
func MyShare(account *types.LedgerAccount) int64 {
	pnl := ClientPnl(account)
	pct := SharePercentageFor(account, pnl)
	if pnl < 0 {
		pnl = -pnl
	}
	return pnl * pct / 100
}
