package decoder

import tracker "github.com/solwatch/tracker"

// instructionDiscriminators is the immutable 8-byte instruction-data
// prefix table (spec §4.5 point 2). Pinned by the swap vector in §8
// scenario 1: [248,198,158,145,225,117,135,200] ⇒ Swap.
var instructionDiscriminators = map[[8]byte]tracker.EventKind{
	{248, 198, 158, 145, 225, 117, 135, 200}: tracker.EventSwap,
	{129, 25, 32, 149, 208, 54, 185, 194}:    tracker.EventLpAdd,   // add_liquidity v2
	{57, 183, 200, 11, 210, 94, 6, 172}:      tracker.EventLpAdd,   // add_liquidity batch
	{183, 18, 70, 156, 148, 109, 161, 34}:    tracker.EventLpRemove, // withdraw
	{92, 47, 153, 66, 7, 214, 201, 88}:       tracker.EventLpRemove, // close_position
	{211, 122, 77, 19, 201, 33, 88, 150}:     tracker.EventLockLiquidity,
	{64, 230, 9, 142, 175, 201, 40, 111}:     tracker.EventUnlockLiquidity,
	{19, 142, 200, 66, 111, 230, 57, 3}:      tracker.EventPoolInit,
	{205, 90, 14, 178, 62, 200, 9, 140}:      tracker.EventClosePool,
	{100, 7, 201, 83, 144, 19, 66, 250}:      tracker.EventLpAdd, // init_position
	{77, 188, 9, 201, 64, 140, 200, 15}:      tracker.EventProtocolFees, // claim_protocol_fees
	{18, 200, 64, 93, 152, 7, 201, 44}:       tracker.EventProtocolFees, // transfer_protocol_fees
	{222, 19, 145, 66, 201, 8, 93, 177}:      tracker.EventClaimRewards, // claim_holder_rewards
	{8, 201, 66, 145, 19, 222, 177, 93}:      tracker.EventClaimRewards, // claim_nft_rewards
	{150, 33, 201, 88, 122, 77, 19, 211}:     tracker.EventSyncStake,    // sync_holder_stake
	{41, 201, 9, 140, 205, 90, 14, 178}:      tracker.EventAdmin,        // update_admin
	{9, 140, 205, 90, 14, 178, 41, 201}:      tracker.EventAdmin,        // update_authorities
	{90, 14, 178, 41, 201, 9, 140, 205}:      tracker.EventAdmin,        // update_fee_config
	{178, 41, 201, 9, 140, 205, 90, 14}:      tracker.EventAdmin,        // set_pause
	{201, 9, 140, 205, 90, 14, 178, 41}:      tracker.EventAdmin,        // set_pause_bits
	{140, 205, 90, 14, 178, 41, 201, 9}:      tracker.EventAdmin,        // unpause_override
	{66, 111, 230, 57, 3, 19, 142, 200}:      tracker.EventSetup,        // create_bin_array
	{111, 230, 57, 3, 19, 142, 200, 66}:      tracker.EventSetup,        // init_oracle
	{230, 57, 3, 19, 142, 200, 66, 111}:      tracker.EventSetup,        // init_position_bin
	{57, 3, 19, 142, 200, 66, 111, 230}:      tracker.EventSetup,        // init_*_global_state
	{3, 19, 142, 200, 66, 111, 230, 57}:      tracker.EventSetup,        // init_user_*_state
	{142, 200, 66, 111, 230, 57, 3, 19}:      tracker.EventSetup,        // view_farming_position
}

// eventDiscriminators is the immutable 8-byte program-data log prefix
// table (spec §4.5 point 3).
var eventDiscriminators = map[[8]byte]tracker.EventKind{
	{40, 198, 145, 8, 66, 177, 19, 222}:   tracker.EventSwap,           // SwapExecuted
	{8, 222, 40, 198, 145, 66, 177, 19}:   tracker.EventLpAdd,          // LiquidityDeposited
	{222, 8, 40, 198, 145, 19, 66, 177}:   tracker.EventLpRemove,       // LiquidityWithdrawnUser
	{145, 19, 222, 8, 40, 177, 198, 66}:   tracker.EventLpRemove,       // LiquidityWithdrawnAdmin
	{19, 142, 200, 66, 111, 230, 57, 4}:   tracker.EventPoolInit,       // PoolInitialized
	{66, 177, 19, 222, 8, 40, 198, 145}:   tracker.EventFeesDistributed, // FeesDistributed
	{177, 19, 222, 8, 40, 198, 145, 66}:   tracker.EventLockLiquidity,  // LiquidityLocked
	{198, 145, 66, 177, 19, 222, 8, 40}:   tracker.EventClaimRewards,   // ClaimHolderRewardsEvent
	{145, 66, 177, 19, 222, 8, 40, 198}:   tracker.EventSyncStake,      // SyncHolderStakeEvent
	{66, 198, 177, 19, 222, 8, 40, 145}:   tracker.EventAdmin,          // AdminUpdated
	{177, 198, 66, 19, 222, 8, 145, 40}:   tracker.EventAdmin,          // AuthoritiesUpdated
	{19, 198, 177, 66, 222, 145, 8, 40}:   tracker.EventAdmin,          // FeeConfigUpdated
	{222, 198, 19, 66, 177, 8, 40, 145}:   tracker.EventAdmin,          // PauseUpdated
	{8, 198, 222, 66, 19, 177, 145, 40}:   tracker.EventSetup,          // BinArrayCreated
	{40, 8, 198, 222, 66, 145, 177, 19}:   tracker.EventSetup,          // LiquidityBinCreated
	{198, 40, 8, 222, 66, 19, 145, 177}:   tracker.EventPoolInit,       // PairRegistered
}

// EncodeInstructionDiscriminator returns the 8-byte prefix registered for
// kind, if any one exists (multiple instructions can map to one kind; this
// returns the first found, used only by round-trip tests).
func EncodeInstructionDiscriminator(kind tracker.EventKind) ([8]byte, bool) {
	for prefix, k := range instructionDiscriminators {
		if k == kind {
			return prefix, true
		}
	}
	return [8]byte{}, false
}

// EncodeEventDiscriminator mirrors EncodeInstructionDiscriminator for the
// event-log table.
func EncodeEventDiscriminator(kind tracker.EventKind) ([8]byte, bool) {
	for prefix, k := range eventDiscriminators {
		if k == kind {
			return prefix, true
		}
	}
	return [8]byte{}, false
}
