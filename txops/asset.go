package txops

import (
	"sort"

	"marketchain/evaluator"
	"marketchain/objectdb"
	"marketchain/types"
	"marketchain/xerrors"
)

// AssetCreateEvaluator implements AssetCreate: registers a new asset
// with its dynamic-data companion and, for a market-issued or prediction
// asset, its bitasset-data companion.
type AssetCreateEvaluator struct{}

func (AssetCreateEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.AssetCreateOp)
	if op.Symbol == "" {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AssetCreate", "", xerrors.ErrMalformedAuthority)
	}
	if _, ok := ctx.DB.Accounts.Get(op.Issuer); !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AssetCreate", op.Issuer.String(), xerrors.ErrObjectNotFound)
	}
	if op.IsPrediction && op.BitassetOpts == nil {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AssetCreate", "", xerrors.ErrMalformedAuthority)
	}
	return evaluator.PrepareFee(ctx.DB, op.Issuer, op.Fee)
}

func (AssetCreateEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.AssetCreateOp)
	ddID, _ := objectdb.Create(ctx.DB, ctx.DB.AssetDynamicData, func(id types.ObjectID, dd *types.AssetDynamicData) {})

	var bitassetID types.ObjectID
	if op.BitassetOpts != nil {
		bitassetID, _ = objectdb.Create(ctx.DB, ctx.DB.BitassetData, func(id types.ObjectID, bd *types.BitassetData) {
			bd.Options = *op.BitassetOpts
			bd.IsPredictionMarket = op.IsPrediction
			bd.Feeds = make(map[types.ObjectID]types.PriceFeed)
		})
	}

	assetID, _ := objectdb.Create(ctx.DB, ctx.DB.Assets, func(id types.ObjectID, a *types.Asset) {
		a.Symbol = op.Symbol
		a.Precision = op.Precision
		a.Issuer = op.Issuer
		a.Options = op.Options
		a.DynamicData = ddID
		a.BitassetData = bitassetID
	})
	return types.OperationResult{NewObjectID: assetID}, nil
}

// AssetUpdateEvaluator implements AssetUpdate: the issuer replaces the
// asset's mutable market-facing options.
type AssetUpdateEvaluator struct{}

func (AssetUpdateEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.AssetUpdateOp)
	asset, ok := ctx.DB.Assets.Get(op.Asset)
	if !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AssetUpdate", op.Asset.String(), xerrors.ErrObjectNotFound)
	}
	if asset.Issuer != op.Issuer {
		return evaluator.Fee{}, xerrors.New(xerrors.KindAuthority, "txops.AssetUpdate", op.Issuer.String(), xerrors.ErrMissingActiveAuthority)
	}
	return evaluator.PrepareFee(ctx.DB, op.Issuer, op.Fee)
}

func (AssetUpdateEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.AssetUpdateOp)
	_, _, err := objectdb.Modify(ctx.DB, ctx.DB.Assets, op.Asset, func(a *types.Asset) {
		a.Options = op.Options
	})
	return types.OperationResult{}, err
}

// AssetUpdateFeedProducersEvaluator implements
// AssetUpdateFeedProducers: the issuer replaces the set of accounts allowed
// to publish a price feed for a bitasset.
type AssetUpdateFeedProducersEvaluator struct{}

func (AssetUpdateFeedProducersEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.AssetUpdateFeedProducersOp)
	asset, ok := ctx.DB.Assets.Get(op.Asset)
	if !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AssetUpdateFeedProducers", op.Asset.String(), xerrors.ErrObjectNotFound)
	}
	if asset.Issuer != op.Issuer {
		return evaluator.Fee{}, xerrors.New(xerrors.KindAuthority, "txops.AssetUpdateFeedProducers", op.Issuer.String(), xerrors.ErrMissingActiveAuthority)
	}
	if !asset.IsMarketIssued() {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AssetUpdateFeedProducers", op.Asset.String(), xerrors.ErrNotMarketIssued)
	}
	return evaluator.PrepareFee(ctx.DB, op.Issuer, op.Fee)
}

func (AssetUpdateFeedProducersEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.AssetUpdateFeedProducersOp)
	asset := ctx.DB.Assets.MustGet(op.Asset)
	_, _, err := objectdb.Modify(ctx.DB, ctx.DB.BitassetData, asset.BitassetData, func(bd *types.BitassetData) {
		bd.FeedProducers = append([]types.ObjectID(nil), op.Producers...)
		for producer := range bd.Feeds {
			found := false
			for _, p := range bd.FeedProducers {
				if p == producer {
					found = true
					break
				}
			}
			if !found {
				delete(bd.Feeds, producer)
			}
		}
	})
	return types.OperationResult{}, err
}

// AssetPublishFeedEvaluator implements AssetPublishFeed: replaces one
// producer's feed observation and recomputes the median. Whether the new
// median crosses the margin-call line is the chain controller's job (it
// runs market fixups after the whole block's transactions apply), not this
// evaluator's.
type AssetPublishFeedEvaluator struct{}

func (AssetPublishFeedEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.AssetPublishFeedOp)
	asset, ok := ctx.DB.Assets.Get(op.Asset)
	if !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AssetPublishFeed", op.Asset.String(), xerrors.ErrObjectNotFound)
	}
	if !asset.IsMarketIssued() {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AssetPublishFeed", op.Asset.String(), xerrors.ErrNotMarketIssued)
	}
	bd, ok := ctx.DB.BitassetData.Get(asset.BitassetData)
	if !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindState, "txops.AssetPublishFeed", asset.BitassetData.String(), xerrors.ErrObjectNotFound)
	}
	if bd.HasSettlement {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AssetPublishFeed", op.Asset.String(), xerrors.ErrAlreadySettled)
	}
	isProducer := false
	for _, p := range bd.FeedProducers {
		if p == op.Publisher {
			isProducer = true
			break
		}
	}
	if !isProducer {
		return evaluator.Fee{}, xerrors.New(xerrors.KindAuthority, "txops.AssetPublishFeed", op.Publisher.String(), xerrors.ErrMissingActiveAuthority)
	}
	return evaluator.PrepareFee(ctx.DB, op.Publisher, op.Fee)
}

func (AssetPublishFeedEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.AssetPublishFeedOp)
	asset := ctx.DB.Assets.MustGet(op.Asset)
	_, _, err := objectdb.Modify(ctx.DB, ctx.DB.BitassetData, asset.BitassetData, func(bd *types.BitassetData) {
		if bd.Feeds == nil {
			bd.Feeds = make(map[types.ObjectID]types.PriceFeed)
		}
		bd.Feeds[op.Publisher] = op.Feed
		bd.CurrentFeed = medianFeed(bd.Feeds, len(bd.FeedProducers))
		bd.CurrentFeedTime = ctx.HeadBlockTime
	})
	return types.OperationResult{}, err
}

// medianFeed returns the median of the published feeds' settlement prices.
// When fewer than the asset's minimum-feeds requirement have published (not
// tracked here directly; the bitasset's options.MinimumFeeds is enforced by
// callers reading CurrentFeed.SettlementPrice.IsNull()), an empty feed set
// yields the null price sentinel.
func medianFeed(feeds map[types.ObjectID]types.PriceFeed, producerCount int) types.PriceFeed {
	if len(feeds) == 0 {
		return types.PriceFeed{}
	}
	ordered := make([]types.PriceFeed, 0, len(feeds))
	for _, f := range feeds {
		ordered = append(ordered, f)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].SettlementPrice.LessThan(ordered[j].SettlementPrice)
	})
	mid := len(ordered) / 2
	if len(ordered)%2 == 1 {
		return ordered[mid]
	}
	// Even count: take the lower-middle element rather than
	// interpolating, since Price has no meaningful average without losing
	// the exact-ratio property every comparison elsewhere depends on.
	return ordered[mid-1]
}

// AssetSettleEvaluator implements AssetSettle: redeems a holding of a globally
// settled asset against its settlement fund at the pinned settlement price.
type AssetSettleEvaluator struct{}

func (AssetSettleEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.AssetSettleOp)
	asset, ok := ctx.DB.Assets.Get(op.Amount.AssetID)
	if !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AssetSettle", op.Amount.AssetID.String(), xerrors.ErrObjectNotFound)
	}
	if !asset.IsMarketIssued() {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AssetSettle", op.Amount.AssetID.String(), xerrors.ErrNotMarketIssued)
	}
	bd, ok := ctx.DB.BitassetData.Get(asset.BitassetData)
	if !ok || !bd.HasSettlement {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AssetSettle", op.Amount.AssetID.String(), xerrors.ErrNotGloballySettled)
	}
	if objectdb.GetBalance(ctx.DB, op.Account, op.Amount.AssetID) < op.Amount.Amount {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AssetSettle", op.Account.String(), xerrors.ErrInsufficientBalance)
	}
	return evaluator.PrepareFee(ctx.DB, op.Account, op.Fee)
}

func (AssetSettleEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.AssetSettleOp)
	asset := ctx.DB.Assets.MustGet(op.Amount.AssetID)
	err := ctx.Market.SettleHolding(op.Amount.AssetID, asset.BitassetData, op.Account, op.Amount.Amount)
	return types.OperationResult{}, err
}
