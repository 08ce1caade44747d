package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Kiwoom REST API message identifiers
const (
	apiStockInfo     = "ka10001" // basic stock info (quote)
	apiDeposit       = "kt00001" // deposit detail
	apiHoldings      = "kt00018" // account valuation balance
	apiPendingOrders = "ka10075" // unfilled orders
	apiBuyOrder      = "kt10000"
	apiSellOrder     = "kt10001"
	apiCancelOrder   = "kt10003"
)

const tokenRenewEarly = time.Hour

// Kiwoom is the Kiwoom Securities REST API client. It implements Broker.
// Token refresh is serialized; a valid token is reused across calls.
type Kiwoom struct {
	baseURL   string
	appKey    string
	appSecret string
	accountNo string
	client    *http.Client

	mu             sync.Mutex
	token          string
	tokenExpiresAt time.Time
}

// NewKiwoom creates a Kiwoom REST client
func NewKiwoom(baseURL, appKey, appSecret, accountNo string) *Kiwoom {
	return &Kiwoom{
		baseURL:   baseURL,
		appKey:    appKey,
		appSecret: appSecret,
		accountNo: accountNo,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ensureToken returns a valid access token, refreshing it when missing or
// within an hour of expiry. At most one refresh is in flight.
func (k *Kiwoom) ensureToken(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.token != "" && time.Now().Before(k.tokenExpiresAt.Add(-tokenRenewEarly)) {
		return k.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     k.appKey,
		"secretkey":  k.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/oauth2/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request token: %w", err)
	}
	defer resp.Body.Close()

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &Error{
			Code:    jsonString(data, "error_code", "UNKNOWN"),
			Message: jsonString(data, "error_description", "token request failed"),
		}
	}

	token, ok := data["token"].(string)
	if !ok || token == "" {
		return "", &Error{Code: "NO_TOKEN", Message: "token missing from response"}
	}

	k.token = token
	k.tokenExpiresAt = time.Now().Add(24 * time.Hour)
	log.Printf("kiwoom token issued, expires %s", k.tokenExpiresAt.Format(time.RFC3339))
	return k.token, nil
}

// request performs a Kiwoom API call. Every endpoint is POST with an api-id
// header and body parameters.
func (k *Kiwoom) request(ctx context.Context, endpoint, apiID string, params map[string]string) (map[string]interface{}, error) {
	token, err := k.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("api-id", apiID)

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", apiID, err)
	}
	defer resp.Body.Close()

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", apiID, err)
	}

	if code := jsonNumber(data, "return_code"); code != 0 {
		return nil, &Error{
			Code:    strconv.FormatInt(code, 10),
			Message: jsonString(data, "return_msg", "unknown error"),
		}
	}
	return data, nil
}

// GetPrice fetches the current quote for a symbol
func (k *Kiwoom) GetPrice(ctx context.Context, symbol string) (*PriceInfo, error) {
	data, err := k.request(ctx, "/api/dostk/stkinfo", apiStockInfo, map[string]string{
		"stk_cd": symbol,
	})
	if err != nil {
		return nil, err
	}

	return &PriceInfo{
		Symbol:       symbol,
		SymbolName:   jsonString(data, "stk_nm", ""),
		CurrentPrice: parseSignedDecimal(jsonString(data, "cur_prc", "0")),
		PrevClose:    parseSignedDecimal(jsonString(data, "base_pric", "0")),
		ChangeRate:   parseSignedDecimal(jsonString(data, "flu_rt", "0")),
	}, nil
}

// GetBalance fetches the account deposit and orderable cash
func (k *Kiwoom) GetBalance(ctx context.Context) (*BalanceInfo, error) {
	data, err := k.request(ctx, "/api/dostk/acnt", apiDeposit, map[string]string{
		"qry_tp": "2",
	})
	if err != nil {
		return nil, err
	}

	output := data
	if wrapped, ok := data["output"].(map[string]interface{}); ok {
		output = wrapped
	}

	return &BalanceInfo{
		TotalDeposit:    parseSignedDecimal(jsonString(output, "entr", "0")),
		AvailableAmount: parseSignedDecimal(jsonString(output, "ord_alow_amt", "0")),
	}, nil
}

// GetHoldings fetches the externally reported holdings
func (k *Kiwoom) GetHoldings(ctx context.Context) ([]HoldingInfo, error) {
	data, err := k.request(ctx, "/api/dostk/acnt", apiHoldings, map[string]string{
		"qry_tp":       "2",
		"dmst_stex_tp": "KRX",
	})
	if err != nil {
		return nil, err
	}

	items, _ := data["acnt_evlt_remn_indv_tot"].([]interface{})
	holdings := make([]HoldingInfo, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		holdings = append(holdings, HoldingInfo{
			Symbol:       strings.TrimPrefix(jsonString(item, "stk_cd", ""), "A"),
			SymbolName:   jsonString(item, "stk_nm", ""),
			Quantity:     parseInt(jsonString(item, "rmnd_qty", "0")),
			AvgPrice:     parseSignedDecimal(jsonString(item, "pur_pric", "0")),
			CurrentPrice: parseSignedDecimal(jsonString(item, "cur_prc", "0")),
			ProfitRate:   parseSignedDecimal(jsonString(item, "prft_rt", "0")),
		})
	}
	return holdings, nil
}

// SubmitBuy places a limit buy order
func (k *Kiwoom) SubmitBuy(ctx context.Context, symbol string, quantity int64, price decimal.Decimal) (*OrderResult, error) {
	return k.submitOrder(ctx, apiBuyOrder, SideBuy, symbol, quantity, price)
}

// SubmitSell places a limit sell order
func (k *Kiwoom) SubmitSell(ctx context.Context, symbol string, quantity int64, price decimal.Decimal) (*OrderResult, error) {
	return k.submitOrder(ctx, apiSellOrder, SideSell, symbol, quantity, price)
}

func (k *Kiwoom) submitOrder(ctx context.Context, apiID, side, symbol string, quantity int64, price decimal.Decimal) (*OrderResult, error) {
	data, err := k.request(ctx, "/api/dostk/ordr", apiID, map[string]string{
		"dmst_stex_tp": "KRX",
		"stk_cd":       symbol,
		"ord_qty":      strconv.FormatInt(quantity, 10),
		"ord_uv":       price.StringFixed(0),
		"trde_tp":      "0", // limit order
	})
	if err != nil {
		return nil, err
	}

	orderID := jsonString(data, "ord_no", "")
	if orderID == "" {
		return nil, &Error{
			Code:    jsonString(data, "return_code", "NO_ORD_NO"),
			Message: jsonString(data, "return_msg", "order number missing from response"),
		}
	}

	return &OrderResult{
		OrderID:  orderID,
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Price:    price,
		Status:   "PENDING",
	}, nil
}

// Cancel cancels an open order. A zero quantity cancels the full remainder.
func (k *Kiwoom) Cancel(ctx context.Context, orderID, symbol string, quantity int64) (bool, error) {
	data, err := k.request(ctx, "/api/dostk/ordr", apiCancelOrder, map[string]string{
		"dmst_stex_tp": "KRX",
		"orig_ord_no":  orderID,
		"stk_cd":       symbol,
		"cncl_qty":     strconv.FormatInt(quantity, 10),
	})
	if err != nil {
		var brokerErr *Error
		if ok := asBrokerError(err, &brokerErr); ok {
			log.Printf("cancel order %s rejected: %v", orderID, brokerErr)
			return false, nil
		}
		return false, err
	}
	return jsonString(data, "ord_no", "") != "", nil
}

// GetPendingOrders fetches open (unfilled) orders across the account
func (k *Kiwoom) GetPendingOrders(ctx context.Context) ([]OrderResult, error) {
	data, err := k.request(ctx, "/api/dostk/acnt", apiPendingOrders, map[string]string{
		"all_stk_tp": "0",
		"trde_tp":    "0",
		"stex_tp":    "1",
	})
	if err != nil {
		return nil, err
	}

	items, _ := data["oso"].([]interface{})
	orders := make([]OrderResult, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		side := SideSell
		if jsonString(item, "trde_tp", "") == "2" {
			side = SideBuy
		}
		orders = append(orders, OrderResult{
			OrderID:  jsonString(item, "ord_no", ""),
			Symbol:   strings.TrimPrefix(jsonString(item, "stk_cd", ""), "A"),
			Side:     side,
			Quantity: parseInt(jsonString(item, "oso_qty", "0")),
			Price:    parseSignedDecimal(jsonString(item, "ord_pric", "0")),
			Status:   "PENDING",
		})
	}
	return orders, nil
}

func asBrokerError(err error, target **Error) bool {
	if e, ok := err.(*Error); ok {
		*target = e
		return true
	}
	return false
}

func jsonString(m map[string]interface{}, key, fallback string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fallback
	}
}

func jsonNumber(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// parseSignedDecimal parses Kiwoom's numeric strings, which may carry a
// leading sign marker and thousands separators, e.g. "+25,525"
func parseSignedDecimal(s string) decimal.Decimal {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimLeft(s, "+-")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseInt(s string) int64 {
	s = strings.ReplaceAll(s, ",", "")
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
