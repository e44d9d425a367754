package delivery

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/KeynihAV/tradecore/pkg/common"
	"github.com/KeynihAV/tradecore/pkg/exchange/market"
	marketRepoPkg "github.com/KeynihAV/tradecore/pkg/exchange/market/repo"
	tradePkg "github.com/KeynihAV/tradecore/pkg/exchange/trade"
	tradeRepoPkg "github.com/KeynihAV/tradecore/pkg/exchange/trade/repo"
	"github.com/KeynihAV/tradecore/pkg/logging"
	queuePkg "github.com/KeynihAV/tradecore/pkg/queue"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

const accountHeader = "X-Account-ID"

type TradeRequest struct {
	Side           tradePkg.Side
	Condition      tradePkg.Condition
	Quantity       int32
	RequestedPrice *decimal.Decimal
}

type TradesHandler struct {
	Trades *tradeRepoPkg.TradesDB
	Stocks *marketRepoPkg.MarketsDB
	Queue  *queuePkg.Queue
	Logger *logging.Logger
}

func validateTradeRequest(request *TradeRequest) error {
	if request.Quantity <= 0 {
		return fmt.Errorf("quantity must be greater than 0")
	}
	if request.Side != tradePkg.Buy && request.Side != tradePkg.Sell {
		return fmt.Errorf("side must be buy or sell")
	}
	if request.Condition != tradePkg.Current {
		return fmt.Errorf("fall / rise trades are not supported at this time")
	}
	if request.RequestedPrice != nil {
		return fmt.Errorf("a share price cannot be specified when trading at the current market value")
	}
	return nil
}

// accountID resolves the caller's account. Identity is supplied by the
// intake collaborator, there is no ambient default user.
func accountID(r *http.Request) (int64, error) {
	raw := r.Header.Get(accountHeader)
	if raw == "" {
		return 0, fmt.Errorf("%v header is required", accountHeader)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%v header must be an account id", accountHeader)
	}
	return id, nil
}

func (th *TradesHandler) Trade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	account, err := accountID(r)
	if err != nil {
		common.RespJSONError(w, http.StatusBadRequest, err, err.Error())
		return
	}

	request := &TradeRequest{}
	if !common.GetStructFromRequest(request, r, w) {
		return
	}
	if err := validateTradeRequest(request); err != nil {
		common.RespJSONError(w, http.StatusBadRequest, err, err.Error())
		return
	}

	stock, err := th.Stocks.StockByTicker(strings.ToUpper(vars["ticker"]))
	if err != nil {
		if errors.Is(err, market.ErrStockNotFound) {
			common.RespJSONError(w, http.StatusBadRequest, err, "provided ticker does not exist")
			return
		}
		common.RespJSONError(w, http.StatusInternalServerError, err, err.Error())
		return
	}

	newTrade := &tradePkg.Trade{
		AccountID:    account,
		StockID:      stock.ID,
		Side:         request.Side,
		Condition:    request.Condition,
		Quantity:     request.Quantity,
		Status:       tradePkg.StatusPending,
		RegisteredAt: time.Now().UTC(),
	}
	tradeID, err := th.Trades.AddTrade(newTrade)
	if err != nil {
		common.RespJSONError(w, http.StatusInternalServerError, err, err.Error())
		return
	}
	newTrade.ID = tradeID

	if err := th.Queue.Publish(ctx, newTrade); err != nil {
		common.RespJSONError(w, http.StatusInternalServerError, err, err.Error())
		return
	}

	common.WriteStructToResponse(struct {
		ID int64 `json:"id"`
	}{ID: tradeID}, w)
}

func (th *TradesHandler) Trades(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	trades, err := th.Trades.TradesByTicker(strings.ToUpper(vars["ticker"]), tradePkg.StatusCompleted)
	if err != nil {
		common.RespJSONError(w, http.StatusInternalServerError, err, err.Error())
		return
	}
	common.WriteStructToResponse(trades, w)
}

func (th *TradesHandler) MyTrades(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	account, err := accountID(r)
	if err != nil {
		common.RespJSONError(w, http.StatusBadRequest, err, err.Error())
		return
	}

	status := tradePkg.Status(r.URL.Query().Get("status"))
	if status != "" && status != tradePkg.StatusPending && status != tradePkg.StatusCompleted {
		common.RespJSONError(w, http.StatusBadRequest, nil, "unknown status filter")
		return
	}

	trades, err := th.Trades.TradesByAccount(account, strings.ToUpper(vars["ticker"]), status)
	if err != nil {
		common.RespJSONError(w, http.StatusInternalServerError, err, err.Error())
		return
	}
	common.WriteStructToResponse(trades, w)
}
