package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"sukoopos/backend/internal/cache"
	"sukoopos/backend/internal/domain"
	"sukoopos/backend/internal/receipt"
	"sukoopos/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	reportTTL time.Duration
}

func New(repo store.Repository, reports cache.ReportCache, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL < 1 {
		reportTTL = time.Minute
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		reportTTL: reportTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListActiveProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleSupervisor, domain.RoleOwner)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.Price < 1 || req.CostPrice < 0 || req.LoyaltyPointValue < 0 || req.DailyStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		Name:              req.Name,
		Category:          req.Category,
		Price:             req.Price,
		CostPrice:         req.CostPrice,
		LoyaltyPointValue: req.LoyaltyPointValue,
		DailyStock:        req.DailyStock,
		IsUnlimited:       req.IsUnlimited,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	log.Printf("[service] product created id=%d name=%s by=%s", created.ID, created.Name, actor.Username)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleSupervisor, domain.RoleOwner); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.Price != nil {
		if *req.Price < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Price = *req.Price
	}
	if req.CostPrice != nil {
		if *req.CostPrice < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.CostPrice = *req.CostPrice
	}
	if req.LoyaltyPointValue != nil {
		if *req.LoyaltyPointValue < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.LoyaltyPointValue = *req.LoyaltyPointValue
	}
	if req.DailyStock != nil {
		if *req.DailyStock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.DailyStock = *req.DailyStock
	}
	if req.IsUnlimited != nil {
		updated.IsUnlimited = *req.IsUnlimited
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeactivateProduct(ctx context.Context, id int64) error {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return err
	}
	if err := s.repo.DeactivateProduct(ctx, id); err != nil {
		return err
	}
	log.Printf("[service] product deactivated id=%d by=%s", id, actor.Username)
	return nil
}

func (s *Service) StockIn(ctx context.Context, productID int64, req domain.StockAdjustRequest) (domain.StockMovement, error) {
	actor, err := requireRole(ctx, domain.RoleSupervisor, domain.RoleOwner)
	if err != nil {
		return domain.StockMovement{}, err
	}
	if req.Qty < 1 {
		return domain.StockMovement{}, store.ErrInvalidInput
	}

	movement, err := s.repo.StockIn(ctx, productID, req.Qty, strings.TrimSpace(req.Note), actor.Username)
	if err != nil {
		return domain.StockMovement{}, err
	}
	return *movement, nil
}

func (s *Service) StockOpname(ctx context.Context, productID int64, req domain.StockAdjustRequest) (domain.StockMovement, error) {
	actor, err := requireRole(ctx, domain.RoleSupervisor, domain.RoleOwner)
	if err != nil {
		return domain.StockMovement{}, err
	}
	if req.Qty < 0 {
		return domain.StockMovement{}, store.ErrInvalidInput
	}

	movement, err := s.repo.StockOpname(ctx, productID, req.Qty, strings.TrimSpace(req.Note), actor.Username)
	if err != nil {
		return domain.StockMovement{}, err
	}
	return *movement, nil
}

func (s *Service) ResetDailyStock(ctx context.Context) (domain.StockResetResponse, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return domain.StockResetResponse{}, err
	}

	now := time.Now().UTC()
	count, err := s.repo.ResetDailyStock(ctx, actor.Username, now)
	if err != nil {
		return domain.StockResetResponse{}, err
	}

	log.Printf("[service] daily stock reset: %d products by=%s", count, actor.Username)
	return domain.StockResetResponse{
		ProductsReset: count,
		Date:          now.Format(domain.DateLayout),
	}, nil
}

func (s *Service) ListStockMovements(ctx context.Context, productID int64, limit int) ([]domain.StockMovement, error) {
	if _, err := requireRole(ctx, domain.RoleSupervisor, domain.RoleOwner); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListStockMovements(ctx, productID, limit)
}

func (s *Service) LookupCustomer(ctx context.Context, phone string) (domain.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}
	customer, err := s.repo.FindCustomerByPhone(ctx, phone)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CustomerPointHistory(ctx context.Context, phone string, limit int) ([]domain.PointHistory, error) {
	customer, err := s.LookupCustomer(ctx, phone)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListPointHistory(ctx, customer.ID, limit)
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleResponse{}, fmt.Errorf("authenticated actor required")
	}

	lines, err := aggregateCart(req.CartItems)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod != domain.PaymentCash && req.PaymentMethod != domain.PaymentQRIS {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}
	if req.RedeemPoints < 0 {
		return domain.SaleResponse{}, store.ErrInvalidRedeemAmount
	}

	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	if req.RedeemPoints > 0 && req.CustomerPhone == "" {
		return domain.SaleResponse{}, store.ErrRedeemRequiresCustomer
	}

	result, err := s.repo.CreateSale(ctx, store.SaleInput{
		Lines:         lines,
		PaymentMethod: req.PaymentMethod,
		CustomerPhone: req.CustomerPhone,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		RedeemPoints:  req.RedeemPoints,
		CreatedBy:     actor.Username,
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	log.Printf("[service] sale %s total=%d items=%d by=%s", result.Transaction.InvoiceNo, result.Transaction.Total, len(result.Transaction.Items), actor.Username)
	return domain.SaleResponse{
		Transaction:    result.Transaction,
		PointsEarned:   result.PointsEarned,
		PointsRedeemed: result.PointsRedeemed,
		CustomerPoints: result.CustomerPoints,
	}, nil
}

func (s *Service) GetTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	tx, err := s.repo.FindTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) GetTransactionByInvoice(ctx context.Context, invoiceNo string) (domain.Transaction, error) {
	invoiceNo = strings.TrimSpace(invoiceNo)
	if invoiceNo == "" {
		return domain.Transaction{}, store.ErrInvalidInput
	}
	tx, err := s.repo.FindTransactionByInvoice(ctx, invoiceNo)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// Receipt assembles the read-only view for a stored transaction and renders
// the printable text.
func (s *Service) Receipt(ctx context.Context, transactionID int64) (domain.ReceiptResponse, error) {
	tx, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	view := domain.ReceiptView{
		InvoiceNo:     tx.InvoiceNo,
		CreatedAt:     tx.CreatedAt,
		Cashier:       tx.CreatedBy,
		PaymentMethod: tx.PaymentMethod,
		Total:         tx.Total,
	}
	for _, item := range tx.Items {
		view.Items = append(view.Items, domain.ReceiptItem{
			Name:     item.ProductName,
			Qty:      item.Qty,
			Price:    item.Price,
			Subtotal: item.Subtotal,
		})
	}

	if tx.CustomerID != nil {
		customer, err := s.repo.GetCustomerByID(ctx, *tx.CustomerID)
		if err != nil {
			return domain.ReceiptResponse{}, err
		}
		rc := domain.ReceiptCustomer{
			Name:          customer.Name,
			Phone:         customer.Phone,
			PointsBalance: customer.Points,
		}
		rows, err := s.repo.ListPointHistoryByTransaction(ctx, tx.ID)
		if err != nil {
			return domain.ReceiptResponse{}, err
		}
		for _, row := range rows {
			if row.Points > 0 {
				rc.PointsEarned += row.Points
			} else {
				rc.PointsRedeemed += -row.Points
			}
		}
		view.Customer = &rc
	}

	return domain.ReceiptResponse{
		InvoiceNo:   tx.InvoiceNo,
		PreviewText: receipt.Render(view),
	}, nil
}

func (s *Service) SalesReport(ctx context.Context, period string, startStr string, endStr string) (domain.SalesReport, error) {
	if _, err := requireRole(ctx, domain.RoleSupervisor, domain.RoleOwner); err != nil {
		return domain.SalesReport{}, err
	}

	from, to, err := resolveReportWindow(period, startStr, endStr, time.Now().UTC())
	if err != nil {
		return domain.SalesReport{}, err
	}

	key := fmt.Sprintf("report:%s:%s", from.Format(domain.DateLayout), to.Format(domain.DateLayout))
	if cached, ok, err := s.reports.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: report cache get failed: %v", err)
	} else if ok {
		return *cached, nil
	}

	report, err := s.repo.GetSalesReport(ctx, from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}

	if err := s.reports.Set(ctx, key, &report, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache set failed: %v", err)
	}
	return report, nil
}

// resolveReportWindow turns period/date parameters into a half-open UTC
// window. Explicit dates win over the period shorthand; end dates are
// inclusive.
func resolveReportWindow(period string, startStr string, endStr string, now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if startStr != "" {
		start, err := time.ParseInLocation(domain.DateLayout, startStr, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, store.ErrInvalidInput
		}
		end := start
		if endStr != "" {
			end, err = time.ParseInLocation(domain.DateLayout, endStr, time.UTC)
			if err != nil {
				return time.Time{}, time.Time{}, store.ErrInvalidInput
			}
		}
		if end.Before(start) {
			return time.Time{}, time.Time{}, store.ErrInvalidInput
		}
		return start, end.Add(24 * time.Hour), nil
	}

	switch strings.ToLower(strings.TrimSpace(period)) {
	case "", "daily":
		return today, today.Add(24 * time.Hour), nil
	case "weekly":
		return today.AddDate(0, 0, -6), today.Add(24 * time.Hour), nil
	case "monthly":
		return today.AddDate(0, 0, -29), today.Add(24 * time.Hour), nil
	default:
		return time.Time{}, time.Time{}, store.ErrInvalidInput
	}
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserInfo, error) {
	if _, err := requireRole(ctx, domain.RoleOwner); err != nil {
		return nil, err
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]domain.UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, domain.UserInfo{
			Username:  u.Username,
			Role:      u.Role,
			Active:    u.Active,
			CreatedAt: u.CreatedAt,
		})
	}
	return infos, nil
}

func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("authenticated actor required")
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("role %s not allowed", actor.Role)
}

// aggregateCart merges duplicate product lines and rejects non-positive
// quantities.
func aggregateCart(items []domain.CartItem) ([]domain.CartItem, error) {
	if len(items) == 0 {
		return nil, store.ErrEmptyCart
	}

	qtyByProduct := make(map[int64]int, len(items))
	order := make([]int64, 0, len(items))
	for _, item := range items {
		if item.ProductID < 1 || item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, seen := qtyByProduct[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		qtyByProduct[item.ProductID] += item.Qty
	}

	sort.Slice(order, func(a, b int) bool { return order[a] < order[b] })
	lines := make([]domain.CartItem, 0, len(order))
	for _, id := range order {
		lines = append(lines, domain.CartItem{ProductID: id, Qty: qtyByProduct[id]})
	}
	return lines, nil
}
