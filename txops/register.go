package txops

import (
	"marketchain/evaluator"
	"marketchain/types"
)

// RegisterAll wires every operation's evaluator into reg. Called once at
// node startup; the chain controller then assigns the resulting registry
// back onto every Context it builds (see evaluator.Context.Registry) so
// ProposalUpdate can execute approved proposals.
func RegisterAll(reg *evaluator.Registry) {
	reg.Register(types.OpTransfer, TransferEvaluator{})
	reg.Register(types.OpAccountCreate, AccountCreateEvaluator{})
	reg.Register(types.OpAccountUpdate, AccountUpdateEvaluator{})
	reg.Register(types.OpAssetCreate, AssetCreateEvaluator{})
	reg.Register(types.OpAssetUpdate, AssetUpdateEvaluator{})
	reg.Register(types.OpAssetUpdateFeedProducers, AssetUpdateFeedProducersEvaluator{})
	reg.Register(types.OpAssetPublishFeed, AssetPublishFeedEvaluator{})
	reg.Register(types.OpAssetSettle, AssetSettleEvaluator{})
	reg.Register(types.OpLimitOrderCreate, LimitOrderCreateEvaluator{})
	reg.Register(types.OpLimitOrderCancel, LimitOrderCancelEvaluator{})
	reg.Register(types.OpCallOrderUpdate, CallOrderUpdateEvaluator{})
	reg.Register(types.OpForceSettle, ForceSettleEvaluator{})
	reg.Register(types.OpBalanceClaim, BalanceClaimEvaluator{})
	reg.Register(types.OpWitnessCreate, WitnessCreateEvaluator{})
	reg.Register(types.OpDelegateCreate, DelegateCreateEvaluator{})
	reg.Register(types.OpProposalCreate, ProposalCreateEvaluator{})
	reg.Register(types.OpProposalUpdate, ProposalUpdateEvaluator{})
}
