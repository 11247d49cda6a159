package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sukoopos/backend/internal/domain"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrInvalidProduct         = errors.New("invalid product")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrRedeemRequiresCustomer = errors.New("redeem requires a customer")
	ErrInsufficientPoints     = errors.New("insufficient points")
	ErrInvalidRedeemAmount    = errors.New("invalid redeem amount")
	ErrInvalidInput           = errors.New("invalid input")
)

// InsufficientStockError names the product that was short so the cashier
// sees which cart line to fix. errors.Is(err, ErrInsufficientStock) matches.
type InsufficientStockError struct {
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: have %d, need %d", e.ProductName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// SaleInput is the validated cart handed to the transaction engine. Lines
// are already aggregated per product and every qty is positive.
type SaleInput struct {
	Lines         []domain.CartItem
	PaymentMethod string
	CustomerPhone string
	CustomerName  string
	RedeemPoints  int
	CreatedBy     string
	Now           time.Time
}

// SaleResult carries the persisted transaction plus the loyalty outcome of
// the sale.
type SaleResult struct {
	Transaction    domain.Transaction
	PointsEarned   int
	PointsRedeemed int
	CustomerPoints *int
}

type Repository interface {
	ListActiveProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeactivateProduct(ctx context.Context, id int64) error

	StockIn(ctx context.Context, productID int64, qty int, note string, actor string) (*domain.StockMovement, error)
	StockOpname(ctx context.Context, productID int64, counted int, note string, actor string) (*domain.StockMovement, error)
	ResetDailyStock(ctx context.Context, actor string, now time.Time) (int, error)
	ListStockMovements(ctx context.Context, productID int64, limit int) ([]domain.StockMovement, error)

	FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error)
	ListPointHistory(ctx context.Context, customerID int64, limit int) ([]domain.PointHistory, error)
	ListPointHistoryByTransaction(ctx context.Context, transactionID int64) ([]domain.PointHistory, error)

	CreateSale(ctx context.Context, input SaleInput) (*SaleResult, error)
	FindTransactionByID(ctx context.Context, id int64) (*domain.Transaction, error)
	FindTransactionByInvoice(ctx context.Context, invoiceNo string) (*domain.Transaction, error)

	GetSalesReport(ctx context.Context, from time.Time, to time.Time) (domain.SalesReport, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
