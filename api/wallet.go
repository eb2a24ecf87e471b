package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
	"github.com/semanticallynull/bikeshare-backend/wallet"
)

type walletResponse struct {
	ID       uuid.UUID       `json:"id"`
	Balance  decimal.Decimal `json:"balance"`
	Arrears  decimal.Decimal `json:"arrears"`
	Currency string          `json:"currency"`
}

func toWalletResponse(w wallet.Wallet) walletResponse {
	return walletResponse{
		ID:       w.ID,
		Balance:  w.Balance,
		Arrears:  w.Arrears,
		Currency: w.Currency,
	}
}

type transactionResponse struct {
	ID        uuid.UUID       `json:"id"`
	Type      wallet.Type     `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Status    wallet.Status   `json:"status"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func toTransactionResponse(t wallet.Transaction) transactionResponse {
	return transactionResponse{
		ID:        t.ID,
		Type:      t.Type,
		Amount:    t.Amount,
		Status:    t.Status,
		Reference: t.Reference.String,
		CreatedAt: t.CreatedAt,
	}
}

func toTransactionResponses(txs []wallet.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	return out
}

func (a *API) walletHandler(c *gin.Context) {
	w, err := a.svc.Wallets.Balance(c.Request.Context(), currentCustomer(c).ID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toWalletResponse(w))
}

func (a *API) transactionsHandler(c *gin.Context) {
	txs, err := a.svc.Wallets.Transactions(c.Request.Context(), currentCustomer(c).ID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTransactionResponses(txs))
}

type topUpRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

func (a *API) topUpHandler(c *gin.Context) {
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Amount == nil {
		renderError(c, errRequired("amount"))
		return
	}

	// Clients retry a top-up by resending the same Idempotency-Key.
	var requestID uuid.UUID
	if h := c.GetHeader("Idempotency-Key"); h != "" {
		id, err := uuid.Parse(h)
		if err != nil {
			renderError(c, apperrors.Invalid("Idempotency-Key", "must be a UUID"))
			return
		}
		requestID = id
	}

	cust := currentCustomer(c)
	t, err := a.svc.Wallets.TopUp(c.Request.Context(), cust.ID, requestID, cust.StripeID.String, *req.Amount)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTransactionResponse(t))
}

type auditResponse struct {
	Wallet       walletResponse        `json:"wallet"`
	LedgerSum    decimal.Decimal       `json:"ledgerSum"`
	Consistent   bool                  `json:"consistent"`
	Transactions []transactionResponse `json:"transactions"`
}

func (a *API) auditHandler(c *gin.Context) {
	customerID, ok := uuidParam(c, "customerId")
	if !ok {
		return
	}

	report, err := a.svc.Wallets.Audit(c.Request.Context(), customerID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, auditResponse{
		Wallet:       toWalletResponse(report.Wallet),
		LedgerSum:    report.LedgerSum,
		Consistent:   report.Consistent(),
		Transactions: toTransactionResponses(report.Transactions),
	})
}
