package ledger

import (
	"github.com/transactionhub/ledger-api/internal/types"
)

// RemainingSettlement is the authoritative view of an account's active
// settlement cycle. Remaining is what the client side still has to pay
// against the frozen share; Overpaid only becomes non-zero on legacy data
// where more than the frozen share was recorded.
type RemainingSettlement struct {
	InitialFinalShare int64 `json:"initial_final_share"`
	TotalSettled      int64 `json:"total_settled"`
	Remaining         int64 `json:"remaining"`
	Overpaid          int64 `json:"overpaid"`
}

// LockInitialShareIfNeeded freezes the broker's share at the current PnL
// snapshot when no cycle is active and the account is not flat. Once a
// cycle is open, later balance drift must not reopen the negotiated
// amount, so calling this again is a no-op until the cycle closes.
//
// The signed PnL at the lock instant is stored alongside the share so
// masked capital stays proportional to the figures the share was actually
// derived from. Returns true if a new cycle was opened.
func LockInitialShareIfNeeded(account *types.LedgerAccount) bool {
	if account.InitialFinalShare != 0 {
		return false
	}
	pnl := ClientPnl(account)
	if pnl == 0 {
		return false
	}
	share := MyShare(account)
	if share == 0 {
		// Zero share percentage: payments on this account are plain
		// balance adjustments, never settlement cycles.
		return false
	}
	account.InitialFinalShare = share
	account.LockedPnl = pnl
	account.TotalSettled = 0
	return true
}

// Remaining reports the state of the active cycle, or all zeros when no
// cycle is active.
func Remaining(account *types.LedgerAccount) RemainingSettlement {
	r := RemainingSettlement{
		InitialFinalShare: account.InitialFinalShare,
		TotalSettled:      account.TotalSettled,
	}
	if d := r.InitialFinalShare - r.TotalSettled; d > 0 {
		r.Remaining = d
	}
	if d := r.TotalSettled - r.InitialFinalShare; d > 0 {
		r.Overpaid = d
	}
	return r
}

// MaskedCapital converts a payment against the frozen share into the
// capital movement it represents: paid * |PnL at lock| / frozen share.
// Paying the full share moves the full PnL magnitude; a partial payment
// moves a proportional slice. Zero when no cycle is active.
func MaskedCapital(account *types.LedgerAccount, paidAmount int64) int64 {
	if account.InitialFinalShare == 0 {
		return 0
	}
	magnitude := account.LockedPnl
	if magnitude < 0 {
		magnitude = -magnitude
	}
	return paidAmount * magnitude / account.InitialFinalShare
}

// resetCycle clears the settlement lock. Called when a cycle fully
// settles, or by the sweeper when PnL returns to zero mid-cycle.
func resetCycle(account *types.LedgerAccount) {
	account.InitialFinalShare = 0
	account.LockedPnl = 0
	account.TotalSettled = 0
}
