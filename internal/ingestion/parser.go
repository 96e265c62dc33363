package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"

	"NFTLend/internal/event"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates and parses raw events
// before handing them to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "Deposit":
		return parseDeposit(raw.Data)
	case "Withdrawal":
		return parseWithdrawal(raw.Data)
	case "Supply":
		return parseSupply(raw.Data)
	case "Redeem":
		return parseRedeem(raw.Data)
	case "Borrow":
		return parseBorrow(raw.Data)
	case "BatchBorrow":
		return parseBatchBorrow(raw.Data)
	case "Repay":
		return parseRepay(raw.Data)
	case "BatchRepay":
		return parseBatchRepay(raw.Data)
	case "AuctionBid":
		return parseAuctionBid(raw.Data)
	case "Liquidate":
		return parseLiquidate(raw.Data)
	case "NftPriceUpdate":
		return parseNftPriceUpdate(raw.Data)
	case "ReservePriceUpdate":
		return parseReservePriceUpdate(raw.Data)
	case "ReserveConfigUpdate":
		return parseReserveConfigUpdate(raw.Data)
	case "NftConfigUpdate":
		return parseNftConfigUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS. Field names
// use snake_case to match upstream producers; wei amounts arrive as decimal
// strings so 256-bit values survive the trip.

func parseWei(s, field string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing %s", field)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse %s: invalid integer %q", field, s)
	}
	return v, nil
}

func parseOptionalWei(s, field string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return parseWei(s, field)
}

type depositJSON struct {
	DepositID   string `json:"deposit_id"`
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDeposit(data []byte) (*event.Deposit, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	amount, err := parseWei(j.Amount, "amount")
	if err != nil {
		return nil, err
	}
	return &event.Deposit{
		DepositID: depositID,
		UserID:    userID,
		Asset:     j.Asset,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type withdrawalJSON struct {
	WithdrawalID string `json:"withdrawal_id"`
	UserID       string `json:"user_id"`
	Asset        string `json:"asset"`
	Amount       string `json:"amount"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseWithdrawal(data []byte) (*event.Withdrawal, error) {
	var j withdrawalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdrawal: %w", err)
	}
	wdID, err := uuid.Parse(j.WithdrawalID)
	if err != nil {
		return nil, fmt.Errorf("parse withdrawal_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	amount, err := parseWei(j.Amount, "amount")
	if err != nil {
		return nil, err
	}
	return &event.Withdrawal{
		WithdrawalID: wdID,
		UserID:       userID,
		Asset:        j.Asset,
		Amount:       amount,
		Sequence:     j.Sequence,
		Timestamp:    j.TimestampUs,
	}, nil
}

type supplyJSON struct {
	SupplyID    string `json:"supply_id"`
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSupply(data []byte) (*event.Supply, error) {
	var j supplyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Supply: %w", err)
	}
	supplyID, err := uuid.Parse(j.SupplyID)
	if err != nil {
		return nil, fmt.Errorf("parse supply_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	amount, err := parseWei(j.Amount, "amount")
	if err != nil {
		return nil, err
	}
	return &event.Supply{
		SupplyID:  supplyID,
		UserID:    userID,
		Asset:     j.Asset,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type redeemJSON struct {
	RedeemID    string `json:"redeem_id"`
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRedeem(data []byte) (*event.Redeem, error) {
	var j redeemJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Redeem: %w", err)
	}
	redeemID, err := uuid.Parse(j.RedeemID)
	if err != nil {
		return nil, fmt.Errorf("parse redeem_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	amount, err := parseWei(j.Amount, "amount")
	if err != nil {
		return nil, err
	}
	return &event.Redeem{
		RedeemID:  redeemID,
		UserID:    userID,
		Asset:     j.Asset,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type borrowJSON struct {
	BorrowID    string `json:"borrow_id"`
	UserID      string `json:"user_id"`
	OnBehalfOf  string `json:"on_behalf_of,omitempty"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	NftAsset    string `json:"nft_asset"`
	NftTokenID  uint64 `json:"nft_token_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseBorrow(data []byte) (*event.Borrow, error) {
	var j borrowJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Borrow: %w", err)
	}
	borrowID, err := uuid.Parse(j.BorrowID)
	if err != nil {
		return nil, fmt.Errorf("parse borrow_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	onBehalfOf := userID
	if j.OnBehalfOf != "" {
		onBehalfOf, err = uuid.Parse(j.OnBehalfOf)
		if err != nil {
			return nil, fmt.Errorf("parse on_behalf_of: %w", err)
		}
	}
	amount, err := parseWei(j.Amount, "amount")
	if err != nil {
		return nil, err
	}
	return &event.Borrow{
		BorrowID:   borrowID,
		UserID:     userID,
		OnBehalfOf: onBehalfOf,
		Asset:      j.Asset,
		Amount:     amount,
		NftAsset:   j.NftAsset,
		NftTokenID: j.NftTokenID,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

type batchBorrowJSON struct {
	BatchID     string   `json:"batch_id"`
	UserID      string   `json:"user_id"`
	OnBehalfOf  string   `json:"on_behalf_of,omitempty"`
	Assets      []string `json:"assets"`
	Amounts     []string `json:"amounts"`
	NftAssets   []string `json:"nft_assets"`
	NftTokenIDs []uint64 `json:"nft_token_ids"`
	Sequence    int64    `json:"sequence"`
	TimestampUs int64    `json:"timestamp_us"`
}

func parseBatchBorrow(data []byte) (*event.BatchBorrow, error) {
	var j batchBorrowJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BatchBorrow: %w", err)
	}
	batchID, err := uuid.Parse(j.BatchID)
	if err != nil {
		return nil, fmt.Errorf("parse batch_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	onBehalfOf := userID
	if j.OnBehalfOf != "" {
		onBehalfOf, err = uuid.Parse(j.OnBehalfOf)
		if err != nil {
			return nil, fmt.Errorf("parse on_behalf_of: %w", err)
		}
	}
	amounts := make([]*big.Int, len(j.Amounts))
	for i, s := range j.Amounts {
		amounts[i], err = parseWei(s, fmt.Sprintf("amounts[%d]", i))
		if err != nil {
			return nil, err
		}
	}
	return &event.BatchBorrow{
		BatchID:     batchID,
		UserID:      userID,
		OnBehalfOf:  onBehalfOf,
		Assets:      j.Assets,
		Amounts:     amounts,
		NftAssets:   j.NftAssets,
		NftTokenIDs: j.NftTokenIDs,
		Sequence:    j.Sequence,
		Timestamp:   j.TimestampUs,
	}, nil
}

type repayJSON struct {
	RepayID     string `json:"repay_id"`
	UserID      string `json:"user_id"`
	NftAsset    string `json:"nft_asset"`
	NftTokenID  uint64 `json:"nft_token_id"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRepay(data []byte) (*event.Repay, error) {
	var j repayJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Repay: %w", err)
	}
	repayID, err := uuid.Parse(j.RepayID)
	if err != nil {
		return nil, fmt.Errorf("parse repay_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	amount, err := parseWei(j.Amount, "amount")
	if err != nil {
		return nil, err
	}
	return &event.Repay{
		RepayID:    repayID,
		UserID:     userID,
		NftAsset:   j.NftAsset,
		NftTokenID: j.NftTokenID,
		Amount:     amount,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

type batchRepayJSON struct {
	BatchID     string   `json:"batch_id"`
	UserID      string   `json:"user_id"`
	NftAssets   []string `json:"nft_assets"`
	NftTokenIDs []uint64 `json:"nft_token_ids"`
	Amounts     []string `json:"amounts"`
	Sequence    int64    `json:"sequence"`
	TimestampUs int64    `json:"timestamp_us"`
}

func parseBatchRepay(data []byte) (*event.BatchRepay, error) {
	var j batchRepayJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BatchRepay: %w", err)
	}
	batchID, err := uuid.Parse(j.BatchID)
	if err != nil {
		return nil, fmt.Errorf("parse batch_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	amounts := make([]*big.Int, len(j.Amounts))
	for i, s := range j.Amounts {
		amounts[i], err = parseWei(s, fmt.Sprintf("amounts[%d]", i))
		if err != nil {
			return nil, err
		}
	}
	return &event.BatchRepay{
		BatchID:     batchID,
		UserID:      userID,
		NftAssets:   j.NftAssets,
		NftTokenIDs: j.NftTokenIDs,
		Amounts:     amounts,
		Sequence:    j.Sequence,
		Timestamp:   j.TimestampUs,
	}, nil
}

type auctionBidJSON struct {
	BidID       string `json:"bid_id"`
	BidderID    string `json:"bidder_id"`
	OnBehalfOf  string `json:"on_behalf_of,omitempty"`
	NftAsset    string `json:"nft_asset"`
	NftTokenID  uint64 `json:"nft_token_id"`
	BidPrice    string `json:"bid_price"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseAuctionBid(data []byte) (*event.AuctionBid, error) {
	var j auctionBidJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AuctionBid: %w", err)
	}
	bidID, err := uuid.Parse(j.BidID)
	if err != nil {
		return nil, fmt.Errorf("parse bid_id: %w", err)
	}
	bidderID, err := uuid.Parse(j.BidderID)
	if err != nil {
		return nil, fmt.Errorf("parse bidder_id: %w", err)
	}
	onBehalfOf := bidderID
	if j.OnBehalfOf != "" {
		onBehalfOf, err = uuid.Parse(j.OnBehalfOf)
		if err != nil {
			return nil, fmt.Errorf("parse on_behalf_of: %w", err)
		}
	}
	bidPrice, err := parseWei(j.BidPrice, "bid_price")
	if err != nil {
		return nil, err
	}
	return &event.AuctionBid{
		BidID:      bidID,
		BidderID:   bidderID,
		OnBehalfOf: onBehalfOf,
		NftAsset:   j.NftAsset,
		NftTokenID: j.NftTokenID,
		BidPrice:   bidPrice,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

type liquidateJSON struct {
	LiquidateID     string `json:"liquidate_id"`
	CallerID        string `json:"caller_id"`
	NftAsset        string `json:"nft_asset"`
	NftTokenID      uint64 `json:"nft_token_id"`
	ExtraDebtAmount string `json:"extra_debt_amount,omitempty"`
	Sequence        int64  `json:"sequence"`
	TimestampUs     int64  `json:"timestamp_us"`
}

func parseLiquidate(data []byte) (*event.Liquidate, error) {
	var j liquidateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Liquidate: %w", err)
	}
	liqID, err := uuid.Parse(j.LiquidateID)
	if err != nil {
		return nil, fmt.Errorf("parse liquidate_id: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	extra, err := parseOptionalWei(j.ExtraDebtAmount, "extra_debt_amount")
	if err != nil {
		return nil, err
	}
	return &event.Liquidate{
		LiquidateID:     liqID,
		CallerID:        callerID,
		NftAsset:        j.NftAsset,
		NftTokenID:      j.NftTokenID,
		ExtraDebtAmount: extra,
		Sequence:        j.Sequence,
		Timestamp:       j.TimestampUs,
	}, nil
}

type nftPriceJSON struct {
	NftAsset       string `json:"nft_asset"`
	Price          string `json:"price"`
	PriceSequence  int64  `json:"price_sequence"`
	PriceTimestamp int64  `json:"price_timestamp_us"`
}

func parseNftPriceUpdate(data []byte) (*event.NftPriceUpdate, error) {
	var j nftPriceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NftPriceUpdate: %w", err)
	}
	price, err := parseWei(j.Price, "price")
	if err != nil {
		return nil, err
	}
	return &event.NftPriceUpdate{
		NftAsset:       j.NftAsset,
		Price:          price,
		PriceSequence:  j.PriceSequence,
		PriceTimestamp: j.PriceTimestamp,
	}, nil
}

type reservePriceJSON struct {
	Asset          string `json:"asset"`
	Price          string `json:"price"`
	PriceSequence  int64  `json:"price_sequence"`
	PriceTimestamp int64  `json:"price_timestamp_us"`
}

func parseReservePriceUpdate(data []byte) (*event.ReservePriceUpdate, error) {
	var j reservePriceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ReservePriceUpdate: %w", err)
	}
	price, err := parseWei(j.Price, "price")
	if err != nil {
		return nil, err
	}
	return &event.ReservePriceUpdate{
		Asset:          j.Asset,
		Price:          price,
		PriceSequence:  j.PriceSequence,
		PriceTimestamp: j.PriceTimestamp,
	}, nil
}

type reserveConfigJSON struct {
	Asset              string `json:"asset"`
	Active             bool   `json:"active"`
	Frozen             bool   `json:"frozen"`
	BorrowingEnabled   bool   `json:"borrowing_enabled"`
	Decimals           uint8  `json:"decimals"`
	ReserveFactor      uint64 `json:"reserve_factor"`
	BaseRate           string `json:"base_rate,omitempty"`
	Slope1             string `json:"slope1,omitempty"`
	Slope2             string `json:"slope2,omitempty"`
	OptimalUtilization string `json:"optimal_utilization,omitempty"`
	Sequence           int64  `json:"sequence"`
	TimestampUs        int64  `json:"timestamp_us"`
}

func parseReserveConfigUpdate(data []byte) (*event.ReserveConfigUpdate, error) {
	var j reserveConfigJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ReserveConfigUpdate: %w", err)
	}
	baseRate, err := parseOptionalWei(j.BaseRate, "base_rate")
	if err != nil {
		return nil, err
	}
	slope1, err := parseOptionalWei(j.Slope1, "slope1")
	if err != nil {
		return nil, err
	}
	slope2, err := parseOptionalWei(j.Slope2, "slope2")
	if err != nil {
		return nil, err
	}
	optimal, err := parseOptionalWei(j.OptimalUtilization, "optimal_utilization")
	if err != nil {
		return nil, err
	}
	return &event.ReserveConfigUpdate{
		Asset:              j.Asset,
		Active:             j.Active,
		Frozen:             j.Frozen,
		BorrowingEnabled:   j.BorrowingEnabled,
		Decimals:           j.Decimals,
		ReserveFactor:      j.ReserveFactor,
		BaseRate:           baseRate,
		Slope1:             slope1,
		Slope2:             slope2,
		OptimalUtilization: optimal,
		Sequence:           j.Sequence,
		Timestamp:          j.TimestampUs,
	}, nil
}

type nftConfigJSON struct {
	NftAsset              string `json:"nft_asset"`
	Active                bool   `json:"active"`
	Frozen                bool   `json:"frozen"`
	LTV                   uint64 `json:"ltv"`
	LiquidationThreshold  uint64 `json:"liquidation_threshold"`
	LiquidatePricePercent uint64 `json:"liquidate_price_percent"`
	AuctionDurationHours  uint64 `json:"auction_duration_hours"`
	MinTokenID            uint64 `json:"min_token_id"`
	MaxTokenID            uint64 `json:"max_token_id"`
	Sequence              int64  `json:"sequence"`
	TimestampUs           int64  `json:"timestamp_us"`
}

func parseNftConfigUpdate(data []byte) (*event.NftConfigUpdate, error) {
	var j nftConfigJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NftConfigUpdate: %w", err)
	}
	return &event.NftConfigUpdate{
		NftAsset:              j.NftAsset,
		Active:                j.Active,
		Frozen:                j.Frozen,
		LTV:                   j.LTV,
		LiquidationThreshold:  j.LiquidationThreshold,
		LiquidatePricePercent: j.LiquidatePricePercent,
		AuctionDurationHours:  j.AuctionDurationHours,
		MinTokenID:            j.MinTokenID,
		MaxTokenID:            j.MaxTokenID,
		Sequence:              j.Sequence,
		Timestamp:             j.TimestampUs,
	}, nil
}
