package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sukoopos/backend/internal/domain"
	"sukoopos/backend/internal/invoice"
	"sukoopos/backend/internal/loyalty"
	"sukoopos/backend/internal/store"
)

type Store struct {
	mu               sync.RWMutex
	products         map[int64]domain.Product
	customersByID    map[int64]domain.Customer
	customerIDByTel  map[string]int64
	transactionsByID map[int64]*domain.Transaction
	txIDByInvoice    map[string]int64
	stockMovements   []domain.StockMovement
	pointHistories   []domain.PointHistory
	usersByUsername  map[string]domain.UserAccount

	nextProductID  int64
	nextCustomerID int64
	nextTxID       int64
	nextItemID     int64
	nextMovementID int64
	nextPointRowID int64
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_OWNER_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "kasir123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"owner", ownerPwd, domain.RoleOwner},
		{"supervisor", ownerPwd, domain.RoleSupervisor},
		{"kasir", cashierPwd, domain.RoleKasir},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:         make(map[int64]domain.Product),
		customersByID:    make(map[int64]domain.Customer),
		customerIDByTel:  make(map[string]int64),
		transactionsByID: make(map[int64]*domain.Transaction),
		txIDByInvoice:    make(map[string]int64),
		stockMovements:   make([]domain.StockMovement, 0, 128),
		pointHistories:   make([]domain.PointHistory, 0, 128),
		usersByUsername:  seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	today := now.Format(domain.DateLayout)

	seed := []domain.Product{
		{Name: "Espresso", Category: "coffee", Price: 15000, CostPrice: 5000, LoyaltyPointValue: 1, DailyStock: 50},
		{Name: "Americano", Category: "coffee", Price: 18000, CostPrice: 6000, LoyaltyPointValue: 1, DailyStock: 50},
		{Name: "Kopi Susu Gula Aren", Category: "coffee", Price: 22000, CostPrice: 8500, LoyaltyPointValue: 2, DailyStock: 80},
		{Name: "Cafe Latte", Category: "coffee", Price: 25000, CostPrice: 9000, LoyaltyPointValue: 2, DailyStock: 60},
		{Name: "Cappuccino", Category: "coffee", Price: 25000, CostPrice: 9000, LoyaltyPointValue: 2, DailyStock: 60},
		{Name: "Matcha Latte", Category: "non-coffee", Price: 28000, CostPrice: 11000, LoyaltyPointValue: 2, DailyStock: 40},
		{Name: "Coklat Panas", Category: "non-coffee", Price: 24000, CostPrice: 9500, LoyaltyPointValue: 2, DailyStock: 40},
		{Name: "Teh Tarik", Category: "non-coffee", Price: 18000, CostPrice: 6000, LoyaltyPointValue: 1, DailyStock: 40},
		{Name: "Air Mineral", Category: "other", Price: 8000, CostPrice: 3000, LoyaltyPointValue: 0, IsUnlimited: true},
		{Name: "Croissant", Category: "snack", Price: 20000, CostPrice: 9000, LoyaltyPointValue: 1, DailyStock: 25},
		{Name: "Roti Bakar", Category: "snack", Price: 15000, CostPrice: 6000, LoyaltyPointValue: 1, DailyStock: 25},
		{Name: "Pisang Goreng", Category: "snack", Price: 12000, CostPrice: 4500, LoyaltyPointValue: 1, DailyStock: 30},
	}
	for _, p := range seed {
		s.nextProductID++
		p.ID = s.nextProductID
		p.Stock = p.DailyStock
		p.StockDate = today
		p.IsActive = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	return s
}

func (s *Store) ListActiveProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	products := make([]domain.Product, 0, len(s.products))
	for id, p := range s.products {
		if !p.IsActive {
			continue
		}
		s.rolloverLocked(&p, "system", now)
		s.products[id] = p
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	clone := product
	return &clone, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.nextProductID++
	product.ID = s.nextProductID
	// Stock starts at zero; it is filled by the daily reset or a manual
	// stock-in, never by creation itself.
	product.Stock = 0
	product.StockDate = now.Format(domain.DateLayout)
	product.IsActive = true
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}

	existing.Name = product.Name
	existing.Category = product.Category
	existing.Price = product.Price
	existing.CostPrice = product.CostPrice
	existing.LoyaltyPointValue = product.LoyaltyPointValue
	existing.DailyStock = product.DailyStock
	existing.IsUnlimited = product.IsUnlimited
	existing.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) DeactivateProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return store.ErrNotFound
	}
	product.IsActive = false
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product
	return nil
}

func (s *Store) StockIn(_ context.Context, productID int64, qty int, note string, actor string) (*domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.IsUnlimited {
		return nil, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	s.rolloverLocked(&product, actor, now)
	product.Stock += qty
	product.UpdatedAt = now
	s.products[productID] = product

	movement := s.appendMovementLocked(productID, domain.MovementIn, qty, note, actor, now)
	return &movement, nil
}

func (s *Store) StockOpname(_ context.Context, productID int64, counted int, note string, actor string) (*domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.IsUnlimited {
		return nil, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	s.rolloverLocked(&product, actor, now)
	diff := counted - product.Stock
	product.Stock = counted
	product.UpdatedAt = now
	s.products[productID] = product

	movement := s.appendMovementLocked(productID, domain.MovementOpname, diff, note, actor, now)
	return &movement, nil
}

func (s *Store) ResetDailyStock(_ context.Context, actor string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.IsZero() {
		now = time.Now().UTC()
	}
	today := now.Format(domain.DateLayout)

	// Snaps every tracked product regardless of stock_date, so an operator
	// can refill a product created earlier the same day. A second run the
	// same day finds nothing left to change and writes no movements.
	count := 0
	for id, p := range s.products {
		if !p.IsActive || p.IsUnlimited {
			continue
		}
		diff := p.DailyStock - p.Stock
		p.Stock = p.DailyStock
		p.StockDate = today
		p.UpdatedAt = now
		s.products[id] = p
		if diff != 0 {
			s.appendMovementLocked(id, domain.MovementReset, diff, "daily reset "+today, actor, now)
			count++
		}
	}
	return count, nil
}

func (s *Store) ListStockMovements(_ context.Context, productID int64, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, 16)
	for _, m := range s.stockMovements {
		if m.ProductID == productID {
			result = append(result, m)
		}
	}
	slices.Reverse(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) FindCustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.customerIDByTel[phone]
	if !exists {
		return nil, store.ErrNotFound
	}
	clone := s.customersByID[id]
	return &clone, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	clone := customer
	return &clone, nil
}

func (s *Store) ListPointHistory(_ context.Context, customerID int64, limit int) ([]domain.PointHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PointHistory, 0, 16)
	for _, h := range s.pointHistories {
		if h.CustomerID == customerID {
			result = append(result, h)
		}
	}
	slices.Reverse(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListPointHistoryByTransaction(_ context.Context, transactionID int64) ([]domain.PointHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PointHistory, 0, 2)
	for _, h := range s.pointHistories {
		if h.TransactionID != nil && *h.TransactionID == transactionID {
			result = append(result, h)
		}
	}
	return result, nil
}

// CreateSale runs the whole sale as one critical section so concurrent
// cashiers observe the same all-or-nothing behavior as the SQL store.
func (s *Store) CreateSale(_ context.Context, input store.SaleInput) (*store.SaleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(input.Lines) == 0 {
		return nil, store.ErrEmptyCart
	}

	now := input.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// An unknown phone number becomes a new customer, but the entry is
	// only registered once the sale is committed below. A failed sale
	// leaves no customer behind, same as the SQL store's rollback.
	var customer *domain.Customer
	newCustomer := false
	if input.CustomerPhone != "" {
		if id, exists := s.customerIDByTel[input.CustomerPhone]; exists {
			c := s.customersByID[id]
			customer = &c
		} else {
			customer = &domain.Customer{
				Phone:     input.CustomerPhone,
				Name:      input.CustomerName,
				CreatedAt: now,
			}
			newCustomer = true
		}
	}
	if input.RedeemPoints > 0 {
		if customer == nil {
			return nil, store.ErrRedeemRequiresCustomer
		}
		if input.RedeemPoints > customer.Points {
			return nil, store.ErrInsufficientPoints
		}
	}

	// Deterministic product order keeps behavior aligned with the SQL
	// store's lock ordering.
	lines := make([]domain.CartItem, len(input.Lines))
	copy(lines, input.Lines)
	sort.Slice(lines, func(a, b int) bool { return lines[a].ProductID < lines[b].ProductID })

	products := make([]domain.Product, len(lines))
	loyaltyLines := make([]loyalty.Line, len(lines))
	for i, line := range lines {
		product, exists := s.products[line.ProductID]
		if !exists || !product.IsActive {
			return nil, store.ErrInvalidProduct
		}
		s.rolloverLocked(&product, input.CreatedBy, now)
		s.products[line.ProductID] = product
		if !product.IsUnlimited && product.Stock < line.Qty {
			return nil, &store.InsufficientStockError{
				ProductName: product.Name,
				Available:   product.Stock,
				Requested:   line.Qty,
			}
		}
		products[i] = product
		loyaltyLines[i] = loyalty.Line{
			ProductID:  product.ID,
			Qty:        line.Qty,
			Price:      product.Price,
			PointValue: product.LoyaltyPointValue,
		}
	}

	alloc, err := loyalty.Allocate(loyaltyLines, input.RedeemPoints)
	if err != nil {
		return nil, store.ErrInvalidRedeemAmount
	}

	// Validation is done; from here on the sale commits.
	if newCustomer {
		s.nextCustomerID++
		customer.ID = s.nextCustomerID
		s.customerIDByTel[customer.Phone] = customer.ID
	}

	var subtotal int64
	items := make([]domain.TransactionItem, len(lines))
	for i, line := range lines {
		lineSubtotal := products[i].Price * int64(line.Qty)
		subtotal += lineSubtotal
		items[i] = domain.TransactionItem{
			ProductID:   products[i].ID,
			ProductName: products[i].Name,
			Price:       products[i].Price,
			CostPrice:   products[i].CostPrice,
			Qty:         line.Qty,
			Subtotal:    lineSubtotal,
		}
	}

	total := subtotal - alloc.Discount
	paymentMethod := input.PaymentMethod
	txType := domain.TxTypeSale
	if alloc.FullRedeem {
		total = 0
		paymentMethod = domain.PaymentRedeem
		txType = domain.TxTypeRedeem
	}

	s.nextTxID++
	tx := &domain.Transaction{
		ID:            s.nextTxID,
		InvoiceNo:     invoice.Number(now),
		Total:         total,
		PaymentMethod: paymentMethod,
		Type:          txType,
		CreatedBy:     input.CreatedBy,
		CreatedAt:     now,
		Items:         items,
	}
	if customer != nil {
		id := customer.ID
		tx.CustomerID = &id
	}
	for i := range tx.Items {
		s.nextItemID++
		tx.Items[i].ID = s.nextItemID
		tx.Items[i].TransactionID = tx.ID
	}

	for i, line := range lines {
		if products[i].IsUnlimited {
			continue
		}
		product := s.products[line.ProductID]
		product.Stock -= line.Qty
		product.UpdatedAt = now
		s.products[line.ProductID] = product
		s.appendMovementLocked(line.ProductID, domain.MovementOut, line.Qty, "TX "+tx.InvoiceNo, input.CreatedBy, now)
	}

	if input.RedeemPoints > 0 {
		customer.Points -= input.RedeemPoints
		s.appendPointRowLocked(customer.ID, &tx.ID, -input.RedeemPoints, domain.PointRedeem, "Redeem on "+tx.InvoiceNo, now)
	}
	if customer != nil && alloc.PointsEarned > 0 {
		customer.Points += alloc.PointsEarned
		s.appendPointRowLocked(customer.ID, &tx.ID, alloc.PointsEarned, domain.PointEarn, "Earn on "+tx.InvoiceNo, now)
	}
	if customer != nil {
		s.customersByID[customer.ID] = *customer
	}

	s.transactionsByID[tx.ID] = tx
	s.txIDByInvoice[tx.InvoiceNo] = tx.ID

	result := &store.SaleResult{
		Transaction:    cloneTransaction(tx),
		PointsEarned:   alloc.PointsEarned,
		PointsRedeemed: input.RedeemPoints,
	}
	if customer != nil {
		points := customer.Points
		result.CustomerPoints = &points
	}
	return result, nil
}

func (s *Store) FindTransactionByID(_ context.Context, id int64) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	clone := cloneTransaction(tx)
	return &clone, nil
}

func (s *Store) FindTransactionByInvoice(_ context.Context, invoiceNo string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.txIDByInvoice[invoiceNo]
	if !exists {
		return nil, store.ErrNotFound
	}
	clone := cloneTransaction(s.transactionsByID[id])
	return &clone, nil
}

func (s *Store) GetSalesReport(_ context.Context, from time.Time, to time.Time) (domain.SalesReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.SalesReport{
		StartDate: from.Format(domain.DateLayout),
		EndDate:   to.Add(-time.Second).Format(domain.DateLayout),
	}

	byPayment := map[string]*domain.PaymentBreakdown{}
	topByProduct := map[int64]*domain.TopProduct{}
	singleDay := to.Sub(from) <= 24*time.Hour
	hourly := make([]int64, 24)

	for _, tx := range s.transactionsByID {
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		report.Transactions++
		report.NetRevenue += tx.Total
		for _, item := range tx.Items {
			report.GrossRevenue += item.Subtotal
			report.TotalCost += item.CostPrice * int64(item.Qty)
			top, ok := topByProduct[item.ProductID]
			if !ok {
				top = &domain.TopProduct{ProductID: item.ProductID, Name: item.ProductName}
				topByProduct[item.ProductID] = top
			}
			top.Qty += int64(item.Qty)
		}
		pb, ok := byPayment[tx.PaymentMethod]
		if !ok {
			pb = &domain.PaymentBreakdown{Method: tx.PaymentMethod}
			byPayment[tx.PaymentMethod] = pb
		}
		pb.Transactions++
		pb.Total += tx.Total
		if singleDay {
			hourly[tx.CreatedAt.Hour()] += tx.Total
		}
	}
	report.Profit = report.GrossRevenue - report.TotalCost

	for _, h := range s.pointHistories {
		if h.CreatedAt.Before(from) || !h.CreatedAt.Before(to) {
			continue
		}
		if h.Points > 0 {
			report.PointsEarned += int64(h.Points)
		} else {
			report.PointsRedeemed += int64(-h.Points)
		}
	}
	report.PointsNet = report.PointsEarned - report.PointsRedeemed

	report.ByPayment = make([]domain.PaymentBreakdown, 0, len(byPayment))
	for _, pb := range byPayment {
		report.ByPayment = append(report.ByPayment, *pb)
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.PaymentBreakdown) int {
		return strings.Compare(a.Method, b.Method)
	})

	report.TopProducts = make([]domain.TopProduct, 0, len(topByProduct))
	for _, top := range topByProduct {
		report.TopProducts = append(report.TopProducts, *top)
	}
	slices.SortFunc(report.TopProducts, func(a, b domain.TopProduct) int {
		if a.Qty != b.Qty {
			if a.Qty > b.Qty {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	if len(report.TopProducts) > 5 {
		report.TopProducts = report.TopProducts[:5]
	}

	if singleDay {
		for hour, total := range hourly {
			if total > 0 {
				report.HourlySales = append(report.HourlySales, domain.HourlySale{Hour: hour, Total: total})
			}
		}
	}
	return report, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// rolloverLocked snaps a stale product back to its daily stock and records
// one RESET movement. At most once per product per calendar day.
func (s *Store) rolloverLocked(product *domain.Product, actor string, now time.Time) {
	if product.IsUnlimited {
		return
	}
	today := now.Format(domain.DateLayout)
	if product.StockDate == today {
		return
	}
	diff := product.DailyStock - product.Stock
	product.Stock = product.DailyStock
	product.StockDate = today
	product.UpdatedAt = now
	if diff != 0 {
		s.appendMovementLocked(product.ID, domain.MovementReset, diff, "daily reset "+today, actor, now)
	}
}

func (s *Store) appendMovementLocked(productID int64, movementType string, qty int, note string, actor string, now time.Time) domain.StockMovement {
	s.nextMovementID++
	movement := domain.StockMovement{
		ID:        s.nextMovementID,
		ProductID: productID,
		Type:      movementType,
		Qty:       qty,
		Note:      note,
		CreatedBy: actor,
		CreatedAt: now,
	}
	s.stockMovements = append(s.stockMovements, movement)
	return movement
}

func (s *Store) appendPointRowLocked(customerID int64, transactionID *int64, points int, pointType string, description string, now time.Time) {
	s.nextPointRowID++
	row := domain.PointHistory{
		ID:          s.nextPointRowID,
		CustomerID:  customerID,
		Points:      points,
		Type:        pointType,
		Description: description,
		CreatedAt:   now,
	}
	if transactionID != nil {
		id := *transactionID
		row.TransactionID = &id
	}
	s.pointHistories = append(s.pointHistories, row)
}

func cloneTransaction(tx *domain.Transaction) domain.Transaction {
	clone := *tx
	clone.Items = make([]domain.TransactionItem, len(tx.Items))
	copy(clone.Items, tx.Items)
	if tx.CustomerID != nil {
		id := *tx.CustomerID
		clone.CustomerID = &id
	}
	return clone
}
