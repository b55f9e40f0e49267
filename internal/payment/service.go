package payment

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"vending-backend/internal/dispense"
	"vending-backend/internal/model"
	"vending-backend/internal/notification"
	"vending-backend/internal/store"
)

// Client-facing errors; the API layer maps these onto HTTP statuses.
var (
	ErrProductNotFound     = errors.New("product not found")
	ErrMachineNotFound     = errors.New("machine not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrMachineNotOnline    = errors.New("machine is not online")
	ErrInvalidPrice        = errors.New("product has no valid price")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrNotCancellable      = errors.New("only pending transactions can be cancelled")
)

// CreateRequest is a purchase intent.
type CreateRequest struct {
	ProductID int64
	MachineID int64
	UserID    int64
	Quantity  int
	Platform  string
}

// CreateResult echoes the created order back to the client.
type CreateResult struct {
	OrderID     string         `json:"orderId"`
	SnapToken   string         `json:"snapToken"`
	SnapURL     string         `json:"snapUrl"`
	GrossAmount int64          `json:"grossAmount"`
	Product     ProductSummary `json:"product"`
	Machine     MachineSummary `json:"machine"`
}

type ProductSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type MachineSummary struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Location string `json:"location"`
}

// Notification is the webhook payload posted by the gateway.
type Notification struct {
	OrderID           string `json:"order_id" binding:"required"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	SignatureKey      string `json:"signature_key"`
}

// Service is the payment reconciler: it creates transactions, applies
// webhook notifications and manual polls, and fires the one-time
// stock-decrement-and-dispense side effect on the success edge.
// Alerter dispatches an admin alert for a machine. A nil alerter disables
// alerting.
type Alerter interface {
	Dispatch(machineID int64, kind string)
}

type Service struct {
	store       store.Store
	gateway     Gateway
	commander   *dispense.Commander
	alerter     Alerter
	serverKey   string
	frontendURL string
}

// NewService creates the reconciler.
func NewService(s store.Store, g Gateway, c *dispense.Commander, serverKey, frontendURL string) *Service {
	return &Service{
		store:       s,
		gateway:     g,
		commander:   c,
		serverKey:   serverKey,
		frontendURL: frontendURL,
	}
}

// SetAlerter enables admin alerts for unfulfillable paid orders.
func (s *Service) SetAlerter(a Alerter) { s.alerter = a }

// Create validates a purchase intent, obtains a redirect token from the
// gateway and persists a pending transaction. A gateway failure leaves the
// ledger untouched so no orphaned pending record exists.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	db := s.store.DB().WithContext(ctx)

	var product model.Product
	if err := db.First(&product, req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to load product %d: %w", req.ProductID, err)
	}
	if product.Price <= 0 {
		return nil, ErrInvalidPrice
	}

	var machine model.Machine
	if err := db.First(&machine, req.MachineID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMachineNotFound
		}
		return nil, fmt.Errorf("failed to load machine %d: %w", req.MachineID, err)
	}
	if machine.Status != model.StatusOnline {
		return nil, ErrMachineNotOnline
	}

	var user model.User
	if err := db.First(&user, req.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user %d: %w", req.UserID, err)
	}

	stock, err := s.store.StockFor(ctx, req.MachineID, req.ProductID)
	if err != nil {
		return nil, err
	}
	if stock < req.Quantity {
		return nil, fmt.Errorf("%w: available %d, requested %d", ErrInsufficientStock, stock, req.Quantity)
	}

	grossAmount := product.Price * int64(req.Quantity)
	orderID := newOrderID()

	snapReq := SnapRequest{
		TransactionDetails: TransactionDetails{OrderID: orderID, GrossAmount: grossAmount},
		ItemDetails: []ItemDetail{{
			ID:       fmt.Sprintf("%d", product.ID),
			Price:    product.Price,
			Quantity: req.Quantity,
			Name:     product.Name,
		}},
		CustomerDetails: CustomerDetails{FirstName: user.Name},
		EnabledPayments: []string{"qris", "gopay", "shopeepay", "bank_transfer", "echannel", "other_va"},
	}
	if s.frontendURL != "" {
		snapReq.Callbacks = &Callbacks{
			Finish:  s.frontendURL + "/payment/success",
			Error:   s.frontendURL + "/payment/failed",
			Pending: s.frontendURL + "/payment/pending",
		}
	}

	snap, err := s.gateway.CreateTransaction(ctx, snapReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway transaction: %w", err)
	}

	rawSnap, _ := json.Marshal(snap)
	platform := req.Platform
	if platform == "" {
		platform = "web"
	}

	tx := &model.Transaction{
		OrderID:         orderID,
		UserID:          user.ID,
		ProductID:       product.ID,
		MachineID:       machine.ID,
		Quantity:        req.Quantity,
		Status:          model.TxPending,
		GrossAmount:     grossAmount,
		SnapToken:       snap.Token,
		SnapURL:         snap.RedirectURL,
		Platform:        platform,
		GatewayResponse: string(rawSnap),
	}
	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	return &CreateResult{
		OrderID:     orderID,
		SnapToken:   snap.Token,
		SnapURL:     snap.RedirectURL,
		GrossAmount: grossAmount,
		Product:     ProductSummary{ID: product.ID, Name: product.Name, Price: product.Price},
		Machine:     MachineSummary{ID: machine.ID, Code: machine.Code, Location: machine.Location},
	}, nil
}

// newOrderID generates a unique order identifier. Time prefix keeps orders
// roughly sortable; the uuid fragment makes collisions negligible.
func newOrderID() string {
	return fmt.Sprintf("ORDER-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// HandleNotification applies a webhook delivery. The signature is checked
// before any state is read; side effects fire only when this delivery is
// the one that crossed the success edge.
func (s *Service) HandleNotification(ctx context.Context, n Notification) (model.TransactionStatus, error) {
	if !s.verifySignature(n) {
		return "", ErrInvalidSignature
	}

	tx, err := s.store.TransactionByOrderID(ctx, n.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Webhook for unknown order %s rejected", n.OrderID)
			return "", ErrTransactionNotFound
		}
		return "", err
	}

	status := mapGatewayStatus(n.TransactionStatus, n.FraudStatus)

	raw, _ := json.Marshal(n)
	edge, err := s.store.ApplyGatewayStatus(ctx, tx.OrderID, store.StatusUpdate{
		Status:            status,
		GatewayTxID:       n.TransactionID,
		TransactionStatus: n.TransactionStatus,
		PaymentType:       n.PaymentType,
		RawResponse:       string(raw),
		PaidAt:            time.Now(),
	})
	if err != nil {
		return "", err
	}

	if edge {
		log.Printf("Payment successful for order %s, starting fulfillment", tx.OrderID)
		s.fulfill(ctx, tx)
	}
	return status, nil
}

// CheckStatus reconciles one order against the gateway directly. A poll
// that finds no change makes no writes; a poll that observes the success
// edge triggers the same one-time side effect as the webhook path.
func (s *Service) CheckStatus(ctx context.Context, orderID string) (*model.Transaction, *StatusResponse, error) {
	tx, err := s.store.TransactionByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrTransactionNotFound
		}
		return nil, nil, err
	}

	gwStatus, err := s.gateway.Status(ctx, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to poll gateway for order %s: %w", orderID, err)
	}

	status := mapGatewayStatus(gwStatus.TransactionStatus, gwStatus.FraudStatus)
	if status != tx.Status {
		raw, _ := json.Marshal(gwStatus)
		edge, err := s.store.ApplyGatewayStatus(ctx, orderID, store.StatusUpdate{
			Status:            status,
			GatewayTxID:       gwStatus.TransactionID,
			TransactionStatus: gwStatus.TransactionStatus,
			PaymentType:       gwStatus.PaymentType,
			RawResponse:       string(raw),
			PaidAt:            time.Now(),
		})
		if err != nil {
			return nil, nil, err
		}
		if edge {
			log.Printf("Poll observed success for order %s, starting fulfillment", orderID)
			s.fulfill(ctx, tx)
		}
		tx, err = s.store.TransactionByOrderID(ctx, orderID)
		if err != nil {
			return nil, nil, err
		}
	}

	return tx, gwStatus, nil
}

// Cancel aborts a pending transaction via the gateway.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	tx, err := s.store.TransactionByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTransactionNotFound
		}
		return err
	}
	if tx.Status != model.TxPending {
		return ErrNotCancellable
	}

	if err := s.gateway.Cancel(ctx, orderID); err != nil {
		return fmt.Errorf("failed to cancel order %s at gateway: %w", orderID, err)
	}

	_, err = s.store.ApplyGatewayStatus(ctx, orderID, store.StatusUpdate{
		Status:            model.TxCancelled,
		GatewayTxID:       tx.GatewayTxID,
		TransactionStatus: "cancel",
		PaymentType:       tx.PaymentType,
		RawResponse:       tx.GatewayResponse,
	})
	return err
}

// fulfill runs the one-time stock-decrement-and-dispense side effect. It is
// reached exactly once per order; failures here are logged and swallowed so
// a confirmed payment is never undone by a hardware-side problem.
func (s *Service) fulfill(ctx context.Context, tx *model.Transaction) {
	ok, err := s.store.DecrementStock(ctx, tx.MachineID, tx.ProductID, tx.Quantity)
	if err != nil {
		log.Printf("Error decrementing stock for order %s: %v", tx.OrderID, err)
		return
	}
	if !ok {
		// Sold but unfulfillable: leave for manual intervention, do not dispense.
		log.Printf("Insufficient stock to fulfill order %s (machine %d, product %d, qty %d)",
			tx.OrderID, tx.MachineID, tx.ProductID, tx.Quantity)
		if s.alerter != nil {
			s.alerter.Dispatch(tx.MachineID, notification.AlertUnfulfillable)
		}
		return
	}

	var machine model.Machine
	if err := s.store.DB().WithContext(ctx).First(&machine, tx.MachineID).Error; err != nil {
		log.Printf("Error loading machine %d for order %s dispense: %v", tx.MachineID, tx.OrderID, err)
		return
	}

	if err := s.commander.Enqueue(ctx, machine.Code, tx.ProductID, tx.Quantity, tx.OrderID); err != nil {
		log.Printf("Error enqueueing dispense for order %s: %v", tx.OrderID, err)
	}
}

// verifySignature checks the keyed hash the gateway signs notifications
// with: SHA-512 over order id, status code, gross amount and the server key.
func (s *Service) verifySignature(n Notification) bool {
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + s.serverKey))
	return hex.EncodeToString(sum[:]) == n.SignatureKey
}

// mapGatewayStatus translates the gateway's transaction/fraud status
// vocabulary onto the internal lifecycle enum. Anything unrecognized maps
// to failed and is logged so new gateway statuses surface in operations.
func mapGatewayStatus(transactionStatus, fraudStatus string) model.TransactionStatus {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "accept" {
			return model.TxSuccess
		}
		return model.TxFailed
	case "settlement":
		return model.TxSuccess
	case "pending":
		return model.TxPending
	case "deny", "cancel":
		return model.TxCancelled
	case "expire":
		return model.TxExpired
	default:
		log.Printf("Unknown gateway transaction status %q, treating as failed", transactionStatus)
		return model.TxFailed
	}
}
