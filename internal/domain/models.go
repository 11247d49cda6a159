package domain

import "time"

type Product struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Category          string    `json:"category"`
	Price             int64     `json:"price"`
	CostPrice         int64     `json:"cost_price"`
	LoyaltyPointValue int       `json:"loyalty_point_value"`
	DailyStock        int       `json:"daily_stock"`
	Stock             int       `json:"stock"`
	StockDate         string    `json:"stock_date"`
	IsUnlimited       bool      `json:"is_unlimited"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name              string `json:"name"`
	Category          string `json:"category"`
	Price             int64  `json:"price"`
	CostPrice         int64  `json:"cost_price"`
	LoyaltyPointValue int    `json:"loyalty_point_value"`
	DailyStock        int    `json:"daily_stock"`
	IsUnlimited       bool   `json:"is_unlimited"`
}

type ProductUpdateRequest struct {
	Name              *string `json:"name,omitempty"`
	Category          *string `json:"category,omitempty"`
	Price             *int64  `json:"price,omitempty"`
	CostPrice         *int64  `json:"cost_price,omitempty"`
	LoyaltyPointValue *int    `json:"loyalty_point_value,omitempty"`
	DailyStock        *int    `json:"daily_stock,omitempty"`
	IsUnlimited       *bool   `json:"is_unlimited,omitempty"`
}

type Customer struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}

type CartItem struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

type SaleRequest struct {
	CartItems     []CartItem `json:"cart_items"`
	PaymentMethod string     `json:"payment_method"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	CustomerName  string     `json:"customer_name,omitempty"`
	RedeemPoints  int        `json:"redeem_points,omitempty"`
}

type TransactionItem struct {
	ID            int64  `json:"id"`
	TransactionID int64  `json:"transaction_id"`
	ProductID     int64  `json:"product_id"`
	ProductName   string `json:"product_name"`
	Price         int64  `json:"price"`
	CostPrice     int64  `json:"cost_price"`
	Qty           int    `json:"qty"`
	Subtotal      int64  `json:"subtotal"`
}

type Transaction struct {
	ID            int64             `json:"id"`
	InvoiceNo     string            `json:"invoice_no"`
	Total         int64             `json:"total"`
	PaymentMethod string            `json:"payment_method"`
	Type          string            `json:"type"`
	CustomerID    *int64            `json:"customer_id,omitempty"`
	CreatedBy     string            `json:"created_by"`
	CreatedAt     time.Time         `json:"created_at"`
	Items         []TransactionItem `json:"items"`
}

type SaleResponse struct {
	Transaction    Transaction `json:"transaction"`
	PointsEarned   int         `json:"points_earned"`
	PointsRedeemed int         `json:"points_redeemed"`
	CustomerPoints *int        `json:"customer_points,omitempty"`
}

type StockMovement struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Type      string    `json:"type"`
	Qty       int       `json:"qty"`
	Note      string    `json:"note"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type StockAdjustRequest struct {
	Qty  int    `json:"qty"`
	Note string `json:"note"`
}

type StockResetResponse struct {
	ProductsReset int    `json:"products_reset"`
	Date          string `json:"date"`
}

type PointHistory struct {
	ID            int64     `json:"id"`
	CustomerID    int64     `json:"customer_id"`
	TransactionID *int64    `json:"transaction_id,omitempty"`
	Points        int       `json:"points"`
	Type          string    `json:"type"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

type PaymentBreakdown struct {
	Method       string `json:"method"`
	Transactions int64  `json:"transactions"`
	Total        int64  `json:"total"`
}

type TopProduct struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Qty       int64  `json:"qty"`
}

type HourlySale struct {
	Hour  int   `json:"hour"`
	Total int64 `json:"total"`
}

type SalesReport struct {
	StartDate      string             `json:"start_date"`
	EndDate        string             `json:"end_date"`
	GrossRevenue   int64              `json:"gross_revenue"`
	NetRevenue     int64              `json:"net_revenue"`
	TotalCost      int64              `json:"total_cost"`
	Profit         int64              `json:"profit"`
	Transactions   int64              `json:"transactions"`
	ByPayment      []PaymentBreakdown `json:"by_payment"`
	TopProducts    []TopProduct       `json:"top_products"`
	HourlySales    []HourlySale       `json:"hourly_sales,omitempty"`
	PointsEarned   int64              `json:"points_earned"`
	PointsRedeemed int64              `json:"points_redeemed"`
	PointsNet      int64              `json:"points_net"`
}

type ReceiptItem struct {
	Name     string `json:"name"`
	Qty      int    `json:"qty"`
	Price    int64  `json:"price"`
	Subtotal int64  `json:"subtotal"`
}

type ReceiptCustomer struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	PointsEarned   int    `json:"points_earned"`
	PointsRedeemed int    `json:"points_redeemed"`
	PointsBalance  int    `json:"points_balance"`
}

// ReceiptView is the read-only projection the renderer consumes. It carries
// everything the printed receipt needs so rendering never touches storage.
type ReceiptView struct {
	InvoiceNo     string           `json:"invoice_no"`
	CreatedAt     time.Time        `json:"created_at"`
	Cashier       string           `json:"cashier"`
	PaymentMethod string           `json:"payment_method"`
	Items         []ReceiptItem    `json:"items"`
	Total         int64            `json:"total"`
	Customer      *ReceiptCustomer `json:"customer,omitempty"`
}

type ReceiptResponse struct {
	InvoiceNo   string `json:"invoice_no"`
	PreviewText string `json:"preview_text"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserInfo struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	TxTypeSale   = "sale"
	TxTypeRedeem = "redeem"
)

const (
	PaymentCash   = "cash"
	PaymentQRIS   = "qris"
	PaymentRedeem = "redeem"
)

const (
	MovementIn     = "IN"
	MovementOut    = "OUT"
	MovementOpname = "OPNAME"
	MovementReset  = "RESET"
)

const (
	PointEarn   = "earn"
	PointRedeem = "redeem"
)

const (
	RoleKasir      = "kasir"
	RoleSupervisor = "supervisor"
	RoleOwner      = "owner"
)

// DateLayout is the calendar-date format used for stock dates and report
// window parameters.
const DateLayout = "2006-01-02"
