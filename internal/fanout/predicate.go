package fanout

import tracker "github.com/solwatch/tracker"

// Predicate implements the per-event-type table from spec §4.9.
func Predicate(ev tracker.SemanticEvent, evctx EventContext, u *tracker.Subscriber) bool {
	switch ev.Kind {
	case tracker.EventSwap:
		return swapPredicate(ev, evctx, u)

	case tracker.EventLpAdd:
		return lpPredicate(ev, evctx, u, u.Filters.PrimaryLpAdd, u.Filters.OtherLpAdd)

	case tracker.EventLpRemove:
		return lpPredicate(ev, evctx, u, u.Filters.PrimaryLpRemove, u.Filters.OtherLpRemove)

	case tracker.EventPoolInit:
		return u.Filters.NewPoolAlerts

	case tracker.EventLockLiquidity, tracker.EventUnlockLiquidity:
		return u.Filters.LockAlerts

	case tracker.EventClaimRewards:
		return u.Filters.RewardAlerts

	case tracker.EventClosePool:
		return u.Filters.ClosePoolAlerts

	case tracker.EventProtocolFees, tracker.EventFeesDistributed:
		return u.Filters.ProtocolFeeAlerts

	case tracker.EventAdmin, tracker.EventSetup, tracker.EventSyncStake:
		return u.Filters.AdminAlerts

	default:
		// Unknown matches no predicate (spec §7).
		return false
	}
}

func swapPredicate(ev tracker.SemanticEvent, evctx EventContext, u *tracker.Subscriber) bool {
	if evctx.IsPrimaryPool {
		sideOk := u.Filters.PrimarySells
		if ev.Direction == tracker.DirectionBuy {
			sideOk = u.Filters.PrimaryBuys
		}
		return sideOk && ev.USD >= u.Filters.PrimaryTradeMin
	}

	if !u.Filters.TrackOtherPools {
		return false
	}
	relevant := evctx.WalletIsTracked || evctx.PoolInWatchlist || evctx.TokenInTracked
	if !relevant {
		return false
	}
	sideOk := u.Filters.OtherSells
	if ev.Direction == tracker.DirectionBuy {
		sideOk = u.Filters.OtherBuys
	}
	return sideOk && ev.USD >= u.Filters.OtherTradeMin
}

func lpPredicate(ev tracker.SemanticEvent, evctx EventContext, u *tracker.Subscriber, primaryToggle, otherToggle bool) bool {
	if evctx.IsPrimaryPool {
		return primaryToggle && ev.USD >= u.Filters.PrimaryTradeMin
	}
	if !u.Filters.TrackOtherPools {
		return false
	}
	return otherToggle && ev.USD >= u.Filters.OtherLpMin
}

// WalletAlertPredicate is evaluated separately from Predicate because a
// WalletAlert is keyed on the sending wallet, not on ev.Kind (spec §4.9
// table: "WalletAlert | u.wallet_alerts ∧ wallet ∈ u.WalletSubscriptions").
func WalletAlertPredicate(wallet string, u *tracker.Subscriber) bool {
	if !u.Filters.WalletAlerts {
		return false
	}
	for _, w := range u.WalletSubscriptions {
		if w == wallet {
			return true
		}
	}
	return false
}
