package models

import (
	"fmt"
	"strings"
	"time"
)

type StrategyType string

const (
	StrategyEMARSI   StrategyType = "emarsi"
	StrategyDonchian StrategyType = "donchian"
)

// Side — направление ордера в терминах биржи: "Buy"/"Sell".
type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// ParseSide принимает buy/BUY/Buy (и sell аналогично).
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return SideBuy, nil
	case "sell", "short":
		return SideSell, nil
	}
	return SideNone, fmt.Errorf("unsupported side %q", s)
}

// UnmarshalText позволяет писать в payload "buy"/"sell" в любом регистре.
func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

type OrderType string

const (
	OrderMarket OrderType = "Market"
	OrderLimit  OrderType = "Limit"
)

// Signal — торговый сигнал, который превращается в ордер.
type Signal struct {
	ID        string       `json:"id,omitempty"`
	Symbol    string       `json:"symbol"`
	Side      Side         `json:"side"`
	Qty       string       `json:"qty,omitempty"`
	Price     float64      `json:"price,omitempty"`
	OrderType OrderType    `json:"orderType,omitempty"`
	Category  string       `json:"category,omitempty"` // linear / spot / inverse
	Timeframe string       `json:"timeframe,omitempty"`
	Strategy  StrategyType `json:"strategy,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	CreatedAt time.Time    `json:"createdAt,omitempty"`
}

func (s Signal) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidSignal)
	}
	if s.Side != SideBuy && s.Side != SideSell {
		return fmt.Errorf("%w: side %q", ErrInvalidSignal, s.Side)
	}
	if s.OrderType == OrderLimit && s.Price <= 0 {
		return fmt.Errorf("%w: limit order without price", ErrInvalidSignal)
	}
	return nil
}

// OrderResult — ответ брокера на успешное размещение.
type OrderResult struct {
	OrderID     string  `json:"orderId"`
	OrderLinkID string  `json:"orderLinkId"`
	FillPrice   float64 `json:"fillPrice"`
	Symbol      string  `json:"symbol"`
	Side        Side    `json:"side"`
}
