package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"signal_exec/internal/models"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const createOrderPath = "/v5/order/create"

type createOrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
	OrderLinkID string `json:"orderLinkId"`
}

type createOrderResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	} `json:"result"`
}

// Execute выставляет ордер по сигналу. Любая ошибка — терминальная для текущей попытки джоба,
// ретраев внутри клиента нет.
func (c *Client) Execute(ctx context.Context, sig models.Signal) (models.OrderResult, error) {
	if c.creds.Empty() {
		return models.OrderResult{}, errors.New("bybit: api credentials are not configured")
	}
	if err := sig.Validate(); err != nil {
		return models.OrderResult{}, err
	}
	if sig.Qty == "" {
		return models.OrderResult{}, fmt.Errorf("%w: empty qty", models.ErrInvalidSignal)
	}

	body := createOrderRequest{
		Category:    sig.Category,
		Symbol:      sig.Symbol,
		Side:        string(sig.Side),
		OrderType:   string(sig.OrderType),
		Qty:         sig.Qty,
		OrderLinkID: sig.ID,
	}
	if body.Category == "" {
		body.Category = c.category
	}
	if body.OrderType == "" {
		body.OrderType = string(models.OrderMarket)
	}
	if body.OrderType == string(models.OrderLimit) {
		body.Price = strconv.FormatFloat(sig.Price, 'f', -1, 64)
		body.TimeInForce = "GTC"
	}
	// orderLinkId делает повторную отправку того же сигнала идемпотентной на стороне биржи
	if body.OrderLinkID == "" || len(body.OrderLinkID) > 36 {
		body.OrderLinkID = uuid.NewString()
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return models.OrderResult{}, errors.Wrap(err, "bybit: marshal order")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createOrderPath, bytes.NewReader(payload))
	if err != nil {
		return models.OrderResult{}, errors.Wrap(err, "bybit: new request")
	}
	c.setAuthHeaders(req, string(payload))

	resp, err := c.http.Do(req)
	if err != nil {
		return models.OrderResult{}, errors.Wrap(err, "bybit: do")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.OrderResult{}, errors.Wrap(err, "bybit: read body")
	}
	if resp.StatusCode/100 != 2 {
		return models.OrderResult{}, fmt.Errorf("bybit: http %d: %s", resp.StatusCode, string(data))
	}

	var r createOrderResponse
	if err := sonic.Unmarshal(data, &r); err != nil {
		return models.OrderResult{}, errors.Wrapf(err, "bybit: decode body=%s", string(data))
	}
	if r.RetCode != 0 {
		return models.OrderResult{}, fmt.Errorf("%w: retCode=%d %s", models.ErrBrokerRejected, r.RetCode, r.RetMsg)
	}
	if r.Result.OrderID == "" {
		return models.OrderResult{}, fmt.Errorf("bybit: empty orderId RAW=%s", string(data))
	}

	return models.OrderResult{
		OrderID:     r.Result.OrderID,
		OrderLinkID: r.Result.OrderLinkID,
		// create не возвращает цену исполнения; берём референсную цену сигнала
		FillPrice: sig.Price,
		Symbol:    sig.Symbol,
		Side:      sig.Side,
	}, nil
}
