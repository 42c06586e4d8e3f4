package tracker

import (
	"fmt"

	"github.com/solwatch/tracker/internal/resolver"
)

// Renderer turns a SemanticEvent into message text plus action hints
// (spec §6 "Message carries pre-rendered text; action_hints is an
// optional list of semantic buttons"). Kept as a free function bound to
// a *resolver.Resolver closure so message copy can change independently
// of the decoder/fan-out predicate tables (internal/fanout's doc
// comment on the Renderer type).
func NewRenderer(res *resolver.Resolver) func(ev SemanticEvent, sub *Subscriber) (string, []string) {
	return func(ev SemanticEvent, sub *Subscriber) (string, []string) {
		switch ev.Kind {
		case EventSwap:
			return renderSwap(ev, res), []string{"view-tx", "snooze-1h"}
		case EventLpAdd:
			return renderLp(ev, res, "added liquidity to"), []string{"view-tx", "add-to-watchlist"}
		case EventLpRemove:
			return renderLp(ev, res, "removed liquidity from"), []string{"view-tx"}
		case EventPoolInit:
			return fmt.Sprintf("New pool initialized: %s", shortPool(ev, res)), []string{"add-to-watchlist"}
		case EventLockLiquidity:
			return fmt.Sprintf("Liquidity locked on %s", shortPool(ev, res)), []string{"view-tx"}
		case EventUnlockLiquidity:
			return fmt.Sprintf("Liquidity unlocked on %s", shortPool(ev, res)), []string{"view-tx"}
		case EventClaimRewards:
			return fmt.Sprintf("Rewards claimed on %s ($%.2f)", shortPool(ev, res), ev.USD), []string{"view-tx"}
		case EventClosePool:
			return fmt.Sprintf("Pool closed: %s", shortPool(ev, res)), nil
		case EventProtocolFees:
			return fmt.Sprintf("Protocol fees distributed on %s ($%.2f)", shortPool(ev, res), ev.USD), nil
		case EventAdmin:
			return fmt.Sprintf("Admin event on %s: %s", shortPool(ev, res), resolver.EscapeMarkdown(ev.EventName)), nil
		case EventSetup:
			return fmt.Sprintf("Setup event on %s", shortPool(ev, res)), nil
		case EventSyncStake:
			return fmt.Sprintf("Stake sync on %s", shortPool(ev, res)), nil
		default:
			if ev.Wallet != "" {
				return fmt.Sprintf("Tracked wallet %s was active (tx %s)", resolver.ShortMint(ev.Wallet), shortSig(ev.Sig)), []string{"view-tx"}
			}
			return fmt.Sprintf("Activity detected (tx %s)", shortSig(ev.Sig)), nil
		}
	}
}

func renderSwap(ev SemanticEvent, res *resolver.Resolver) string {
	side := "bought"
	if ev.Direction == DirectionSell {
		side = "sold"
	}
	symbolIn := res.GetSymbol(string(ev.Amounts.MintIn))
	symbolOut := res.GetSymbol(string(ev.Amounts.MintOut))
	return fmt.Sprintf("Swap on %s: %s %s -> %s ($%.2f)", shortPool(ev, res), side,
		resolver.EscapeMarkdown(symbolIn), resolver.EscapeMarkdown(symbolOut), ev.USD)
}

func renderLp(ev SemanticEvent, res *resolver.Resolver, verb string) string {
	return fmt.Sprintf("Wallet %s %s %s ($%.2f)", resolver.ShortMint(ev.Wallet), verb, shortPool(ev, res), ev.USD)
}

func shortPool(ev SemanticEvent, res *resolver.Resolver) string {
	if ev.PoolID == "" {
		return "unknown pool"
	}
	return ev.PoolID
}

func shortSig(sig string) string {
	return resolver.ShortMint(sig)
}
