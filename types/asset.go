package types

// CoreAssetID is the chain's native asset, always the first asset object
// created (instance 0). Fees are ultimately settled in this asset even when
// paid in another.
var CoreAssetID = ObjectID{Space: SpaceProtocol, Type: TypeAsset, Instance: 0}

// AssetOptions holds the mutable, market-facing asset settings.
type AssetOptions struct {
	MaxSupply         int64
	MarketFeePercent  uint16 // basis points
	MaxMarketFee      int64
	IsExchangeable    bool
	CoreExchangeRate  Price // used to convert this asset into core for fee payment
	WhitelistAuthorities []ObjectID
	BlacklistAuthorities []ObjectID
}

// Asset is the protocol-space fungible-asset definition. Precision is the
// number of decimal digits the smallest Amount unit represents.
type Asset struct {
	ID            ObjectID
	Symbol        string
	Precision     uint8
	Issuer        ObjectID
	Options       AssetOptions
	DynamicData   ObjectID // -> AssetDynamicData
	BitassetData  ObjectID // Null unless market-issued
}

// IsMarketIssued reports whether the asset has an attached BitassetData
// object (i.e. it is backed by collateral rather than issued directly by
// its issuer).
func (a Asset) IsMarketIssued() bool {
	return !a.BitassetData.IsNull()
}

// AssetDynamicData is the implementation-space companion tracking supply and
// fee accumulation, split out so high-frequency mutation does not require
// touching the (larger, less frequently written) Asset object.
type AssetDynamicData struct {
	ID                       ObjectID
	CurrentSupply            int64
	AccumulatedFees          int64
	FeePool                  int64 // core held to subsidize fees paid in this asset
	ForceSettledVolumeThisPeriod int64 // reset to 0 each maintenance interval
}

// BitassetOptions are the feed-governed parameters of a market-issued asset.
type BitassetOptions struct {
	ShortBackingAsset         ObjectID
	FeedLifetimeSeconds       uint32
	MaintenanceCollateralRatio uint16 // fixed point, denom 1000 (e.g. 1750 == 1.75x)
	MaximumShortSqueezeRatio  uint16 // fixed point, denom 1000
	MinimumFeeds              uint8

	// ForceSettlementOffsetPercent discounts the feed price paid to a force
	// settlement requester, fixed point denom 10000 (e.g. 100 == 1%).
	ForceSettlementOffsetPercent uint16
	// ForceSettlementDelaySeconds is how long a request waits after creation
	// before it becomes executable (ExecuteAfter = request time + this).
	ForceSettlementDelaySeconds uint32
	// MaximumForceSettlementVolumePercent caps total forced-settlement volume
	// per maintenance period as a percentage (denom 10000) of current supply.
	MaximumForceSettlementVolumePercent uint16
}

// BitassetData is the implementation-space companion for a market-issued
// asset: the current feed median, settlement state, and options.
type BitassetData struct {
	ID               ObjectID
	Options          BitassetOptions
	FeedProducers    []ObjectID
	Feeds            map[ObjectID]PriceFeed // producer -> most recent feed
	CurrentFeed      PriceFeed              // median of Feeds
	CurrentFeedTime  int64
	IsPredictionMarket bool

	// Global settlement state. SettlementPrice is the zero Price until
	// HasSettlement is true.
	HasSettlement       bool
	SettlementPrice     Price
	SettlementFund      int64 // collateral amount backing unsettled debt
}

// PriceFeed is one producer's (or the median) price observation for a
// bitasset, including the derived call-limit prices used by the matching
// engine. SettlementPrice is oriented Base=the bitasset itself (the debt),
// Quote=the backing collateral asset, so it compares directly against
// ~CallOrder.CallPrice and against a resting LimitOrder selling the bitasset
// for collateral.
type PriceFeed struct {
	SettlementPrice Price
	CoreExchangeRate Price
	MaintenanceCollateralRatio uint16
	MaximumShortSqueezeRatio   uint16
}

// MaxShortSqueezePrice returns the feed's settlement price scaled by the
// maximum short squeeze ratio, the most aggressive price margin-call
// matching is allowed to fill at.
func (f PriceFeed) MaxShortSqueezePrice() Price {
	const denom = 1000
	return Price{
		Base: Amount{
			Amount:  int64(int64(f.SettlementPrice.Base.Amount) * int64(f.MaximumShortSqueezeRatio) / denom),
			AssetID: f.SettlementPrice.Base.AssetID,
		},
		Quote: f.SettlementPrice.Quote,
	}
}
