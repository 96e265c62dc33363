package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"

	"NFTLend/internal/event"
)

// MarshalEvent serializes a typed event back into its wire JSON format. The
// output round-trips through ParseRawEvent, which is what the event log
// relies on during replay.
func MarshalEvent(evt event.Event) ([]byte, error) {
	switch e := evt.(type) {
	case *event.Deposit:
		return json.Marshal(depositJSON{
			DepositID:   e.DepositID.String(),
			UserID:      e.UserID.String(),
			Asset:       e.Asset,
			Amount:      weiString(e.Amount),
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.Withdrawal:
		return json.Marshal(withdrawalJSON{
			WithdrawalID: e.WithdrawalID.String(),
			UserID:       e.UserID.String(),
			Asset:        e.Asset,
			Amount:       weiString(e.Amount),
			Sequence:     e.Sequence,
			TimestampUs:  e.Timestamp,
		})
	case *event.Supply:
		return json.Marshal(supplyJSON{
			SupplyID:    e.SupplyID.String(),
			UserID:      e.UserID.String(),
			Asset:       e.Asset,
			Amount:      weiString(e.Amount),
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.Redeem:
		return json.Marshal(redeemJSON{
			RedeemID:    e.RedeemID.String(),
			UserID:      e.UserID.String(),
			Asset:       e.Asset,
			Amount:      weiString(e.Amount),
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.Borrow:
		return json.Marshal(borrowJSON{
			BorrowID:    e.BorrowID.String(),
			UserID:      e.UserID.String(),
			OnBehalfOf:  e.OnBehalfOf.String(),
			Asset:       e.Asset,
			Amount:      weiString(e.Amount),
			NftAsset:    e.NftAsset,
			NftTokenID:  e.NftTokenID,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.BatchBorrow:
		return json.Marshal(batchBorrowJSON{
			BatchID:     e.BatchID.String(),
			UserID:      e.UserID.String(),
			OnBehalfOf:  e.OnBehalfOf.String(),
			Assets:      e.Assets,
			Amounts:     weiStrings(e.Amounts),
			NftAssets:   e.NftAssets,
			NftTokenIDs: e.NftTokenIDs,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.Repay:
		return json.Marshal(repayJSON{
			RepayID:     e.RepayID.String(),
			UserID:      e.UserID.String(),
			NftAsset:    e.NftAsset,
			NftTokenID:  e.NftTokenID,
			Amount:      weiString(e.Amount),
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.BatchRepay:
		return json.Marshal(batchRepayJSON{
			BatchID:     e.BatchID.String(),
			UserID:      e.UserID.String(),
			NftAssets:   e.NftAssets,
			NftTokenIDs: e.NftTokenIDs,
			Amounts:     weiStrings(e.Amounts),
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.AuctionBid:
		return json.Marshal(auctionBidJSON{
			BidID:       e.BidID.String(),
			BidderID:    e.BidderID.String(),
			OnBehalfOf:  e.OnBehalfOf.String(),
			NftAsset:    e.NftAsset,
			NftTokenID:  e.NftTokenID,
			BidPrice:    weiString(e.BidPrice),
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.Liquidate:
		return json.Marshal(liquidateJSON{
			LiquidateID:     e.LiquidateID.String(),
			CallerID:        e.CallerID.String(),
			NftAsset:        e.NftAsset,
			NftTokenID:      e.NftTokenID,
			ExtraDebtAmount: weiString(e.ExtraDebtAmount),
			Sequence:        e.Sequence,
			TimestampUs:     e.Timestamp,
		})
	case *event.NftPriceUpdate:
		return json.Marshal(nftPriceJSON{
			NftAsset:       e.NftAsset,
			Price:          weiString(e.Price),
			PriceSequence:  e.PriceSequence,
			PriceTimestamp: e.PriceTimestamp,
		})
	case *event.ReservePriceUpdate:
		return json.Marshal(reservePriceJSON{
			Asset:          e.Asset,
			Price:          weiString(e.Price),
			PriceSequence:  e.PriceSequence,
			PriceTimestamp: e.PriceTimestamp,
		})
	case *event.ReserveConfigUpdate:
		return json.Marshal(reserveConfigJSON{
			Asset:              e.Asset,
			Active:             e.Active,
			Frozen:             e.Frozen,
			BorrowingEnabled:   e.BorrowingEnabled,
			Decimals:           e.Decimals,
			ReserveFactor:      e.ReserveFactor,
			BaseRate:           weiString(e.BaseRate),
			Slope1:             weiString(e.Slope1),
			Slope2:             weiString(e.Slope2),
			OptimalUtilization: weiString(e.OptimalUtilization),
			Sequence:           e.Sequence,
			TimestampUs:        e.Timestamp,
		})
	case *event.NftConfigUpdate:
		return json.Marshal(nftConfigJSON{
			NftAsset:              e.NftAsset,
			Active:                e.Active,
			Frozen:                e.Frozen,
			LTV:                   e.LTV,
			LiquidationThreshold:  e.LiquidationThreshold,
			LiquidatePricePercent: e.LiquidatePricePercent,
			AuctionDurationHours:  e.AuctionDurationHours,
			MinTokenID:            e.MinTokenID,
			MaxTokenID:            e.MaxTokenID,
			Sequence:              e.Sequence,
			TimestampUs:           e.Timestamp,
		})
	default:
		return nil, fmt.Errorf("marshal: unknown event type %T", evt)
	}
}

func weiString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func weiStrings(vs []*big.Int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = weiString(v)
	}
	return out
}
