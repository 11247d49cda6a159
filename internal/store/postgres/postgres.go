package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sukoopos/backend/internal/domain"
	"sukoopos/backend/internal/invoice"
	"sukoopos/backend/internal/loyalty"
	"sukoopos/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, category, price, cost_price, loyalty_point_value, daily_stock, stock, stock_date, is_unlimited, is_active, created_at, updated_at`

func (s *Store) ListActiveProducts(ctx context.Context) ([]domain.Product, error) {
	if err := s.rolloverStaleProducts(ctx, "system", time.Now().UTC()); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE is_active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	now := time.Now().UTC()
	// Stock starts at zero; it is filled by the daily reset or a manual
	// stock-in, never by creation itself.
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, category, price, cost_price, loyalty_point_value, daily_stock, stock, stock_date, is_unlimited, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8,true,$9,$9)
		RETURNING id
	`, product.Name, product.Category, product.Price, product.CostPrice, product.LoyaltyPointValue,
		product.DailyStock, now.Format(domain.DateLayout), product.IsUnlimited, now).Scan(&product.ID)
	if err != nil {
		return nil, err
	}

	product.Stock = 0
	product.StockDate = now.Format(domain.DateLayout)
	product.IsActive = true
	product.CreatedAt = now
	product.UpdatedAt = now
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price = $4, cost_price = $5, loyalty_point_value = $6, daily_stock = $7, is_unlimited = $8, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.Price, product.CostPrice,
		product.LoyaltyPointValue, product.DailyStock, product.IsUnlimited)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) DeactivateProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET is_active = false, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) StockIn(ctx context.Context, productID int64, qty int, note string, actor string) (*domain.StockMovement, error) {
	return s.adjustStock(ctx, productID, note, actor, func(stock int) (int, string, int) {
		return stock + qty, domain.MovementIn, qty
	})
}

func (s *Store) StockOpname(ctx context.Context, productID int64, counted int, note string, actor string) (*domain.StockMovement, error) {
	return s.adjustStock(ctx, productID, note, actor, func(stock int) (int, string, int) {
		return counted, domain.MovementOpname, counted - stock
	})
}

// adjustStock locks one product row, runs the lazy rollover, applies the
// mutation, and records the movement, all in one transaction.
func (s *Store) adjustStock(ctx context.Context, productID int64, note string, actor string, mutate func(stock int) (int, string, int)) (*domain.StockMovement, error) {
	now := time.Now().UTC()
	today := now.Format(domain.DateLayout)

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var (
		dailyStock  int
		stock       int
		stockDate   time.Time
		isUnlimited bool
	)
	err = pgTx.QueryRowContext(ctx, `
		SELECT daily_stock, stock, stock_date, is_unlimited
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&dailyStock, &stock, &stockDate, &isUnlimited)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if isUnlimited {
		return nil, store.ErrInvalidInput
	}

	if stockDate.Format(domain.DateLayout) != today {
		if err := applyRollover(ctx, pgTx, productID, dailyStock, stock, actor, now); err != nil {
			return nil, err
		}
		stock = dailyStock
	}

	newStock, movementType, movementQty := mutate(stock)
	_, err = pgTx.ExecContext(ctx, `
		UPDATE products
		SET stock = $2, updated_at = now()
		WHERE id = $1
	`, productID, newStock)
	if err != nil {
		return nil, err
	}

	movement := domain.StockMovement{
		ProductID: productID,
		Type:      movementType,
		Qty:       movementQty,
		Note:      note,
		CreatedBy: actor,
		CreatedAt: now,
	}
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO stock_movements (product_id, type, qty, note, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, movement.ProductID, movement.Type, movement.Qty, movement.Note, movement.CreatedBy, movement.CreatedAt).Scan(&movement.ID)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &movement, nil
}

func (s *Store) ResetDailyStock(ctx context.Context, actor string, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() { _ = pgTx.Rollback() }()

	// Unlike the lazy rollover this snaps every tracked product back to
	// its daily stock regardless of stock_date, so an operator can refill
	// a product created earlier the same day. Invoking it twice on the
	// same day finds nothing left to change and writes no movements.
	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, daily_stock, stock
		FROM products
		WHERE is_active = true AND is_unlimited = false
		ORDER BY id
		FOR UPDATE
	`)
	if err != nil {
		return 0, err
	}
	type productStock struct {
		id         int64
		dailyStock int
		stock      int
	}
	targets := make([]productStock, 0, 32)
	for rows.Next() {
		var p productStock
		if err := rows.Scan(&p.id, &p.dailyStock, &p.stock); err != nil {
			_ = rows.Close()
			return 0, err
		}
		targets = append(targets, p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	count := 0
	for _, p := range targets {
		if err := applyRollover(ctx, pgTx, p.id, p.dailyStock, p.stock, actor, now); err != nil {
			return 0, err
		}
		if p.stock != p.dailyStock {
			count++
		}
	}

	if err := pgTx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// rolloverStaleProducts is the lazy path shared by product reads.
func (s *Store) rolloverStaleProducts(ctx context.Context, actor string, now time.Time) error {
	today := now.Format(domain.DateLayout)

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, daily_stock, stock
		FROM products
		WHERE is_active = true AND is_unlimited = false AND stock_date <> $1
		ORDER BY id
		FOR UPDATE
	`, today)
	if err != nil {
		return err
	}
	type staleProduct struct {
		id         int64
		dailyStock int
		stock      int
	}
	stale := make([]staleProduct, 0, 32)
	for rows.Next() {
		var p staleProduct
		if err := rows.Scan(&p.id, &p.dailyStock, &p.stock); err != nil {
			_ = rows.Close()
			return err
		}
		stale = append(stale, p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, p := range stale {
		if err := applyRollover(ctx, pgTx, p.id, p.dailyStock, p.stock, actor, now); err != nil {
			return err
		}
	}
	return pgTx.Commit()
}

// applyRollover snaps one locked product back to its daily stock and writes
// the signed RESET movement.
func applyRollover(ctx context.Context, pgTx *sql.Tx, productID int64, dailyStock int, stock int, actor string, now time.Time) error {
	today := now.Format(domain.DateLayout)
	_, err := pgTx.ExecContext(ctx, `
		UPDATE products
		SET stock = daily_stock, stock_date = $2, updated_at = now()
		WHERE id = $1
	`, productID, today)
	if err != nil {
		return err
	}
	diff := dailyStock - stock
	if diff == 0 {
		return nil
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO stock_movements (product_id, type, qty, note, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, productID, domain.MovementReset, diff, "daily reset "+today, actor, now)
	return err
}

func (s *Store) ListStockMovements(ctx context.Context, productID int64, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, type, qty, note, created_by, created_at
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.Qty, &m.Note, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, phone, name, points, created_at
		FROM customers
		WHERE phone = $1
	`, phone).Scan(&c.ID, &c.Phone, &c.Name, &c.Points, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, phone, name, points, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Phone, &c.Name, &c.Points, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListPointHistory(ctx context.Context, customerID int64, limit int) ([]domain.PointHistory, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, transaction_id, points, type, description, created_at
		FROM point_histories
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPointHistory(rows)
}

func (s *Store) ListPointHistoryByTransaction(ctx context.Context, transactionID int64) ([]domain.PointHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, transaction_id, points, type, description, created_at
		FROM point_histories
		WHERE transaction_id = $1
		ORDER BY id
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPointHistory(rows)
}

// CreateSale is the whole sale as one transaction: customer lock first,
// then product locks in ascending id order, lazy rollover, stock checks,
// snapshots, loyalty, movements, point rows. Read committed is enough
// here: the FOR UPDATE locks serialize the stock checks, and a losing
// concurrent sale re-reads the committed stock once its lock is granted
// instead of failing with a serialization error.
func (s *Store) CreateSale(ctx context.Context, input store.SaleInput) (*store.SaleResult, error) {
	if len(input.Lines) == 0 {
		return nil, store.ErrEmptyCart
	}

	now := input.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	today := now.Format(domain.DateLayout)

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var customer *domain.Customer
	if input.CustomerPhone != "" {
		customer, err = lockOrCreateCustomer(ctx, pgTx, input.CustomerPhone, input.CustomerName, now)
		if err != nil {
			return nil, err
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

	lines := make([]domain.CartItem, len(input.Lines))
	copy(lines, input.Lines)
	sort.Slice(lines, func(a, b int) bool { return lines[a].ProductID < lines[b].ProductID })

	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}

	productRows, err := pgTx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	productMap := make(map[int64]domain.Product, len(ids))
	for productRows.Next() {
		p, err := scanProduct(productRows)
		if err != nil {
			_ = productRows.Close()
			return nil, err
		}
		productMap[p.ID] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	products := make([]domain.Product, len(lines))
	loyaltyLines := make([]loyalty.Line, len(lines))
	for i, line := range lines {
		product, exists := productMap[line.ProductID]
		if !exists || !product.IsActive {
			return nil, store.ErrInvalidProduct
		}
		if !product.IsUnlimited && product.StockDate != today {
			if err := applyRollover(ctx, pgTx, product.ID, product.DailyStock, product.Stock, input.CreatedBy, now); err != nil {
				return nil, err
			}
			product.Stock = product.DailyStock
			product.StockDate = today
		}
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

	tx := domain.Transaction{
		InvoiceNo:     invoice.Number(now),
		Total:         total,
		PaymentMethod: paymentMethod,
		Type:          txType,
		CreatedBy:     input.CreatedBy,
		CreatedAt:     now,
		Items:         items,
	}
	var customerID any
	if customer != nil {
		id := customer.ID
		tx.CustomerID = &id
		customerID = id
	}

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO transactions (invoice_no, total, payment_method, type, customer_id, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, tx.InvoiceNo, tx.Total, tx.PaymentMethod, tx.Type, customerID, tx.CreatedBy, tx.CreatedAt).Scan(&tx.ID)
	if err != nil {
		return nil, err
	}

	for i := range tx.Items {
		tx.Items[i].TransactionID = tx.ID
		err := pgTx.QueryRowContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_id, product_name, price, cost_price, qty, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id
		`, tx.ID, tx.Items[i].ProductID, tx.Items[i].ProductName, tx.Items[i].Price,
			tx.Items[i].CostPrice, tx.Items[i].Qty, tx.Items[i].Subtotal).Scan(&tx.Items[i].ID)
		if err != nil {
			return nil, err
		}
	}

	for i, line := range lines {
		if products[i].IsUnlimited {
			continue
		}
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $2, updated_at = now()
			WHERE id = $1
		`, line.ProductID, line.Qty)
		if err != nil {
			return nil, err
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO stock_movements (product_id, type, qty, note, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, line.ProductID, domain.MovementOut, line.Qty, "TX "+tx.InvoiceNo, input.CreatedBy, now)
		if err != nil {
			return nil, err
		}
	}

	customerPoints := 0
	if customer != nil {
		customerPoints = customer.Points
	}
	if input.RedeemPoints > 0 {
		customerPoints -= input.RedeemPoints
		if err := addPoints(ctx, pgTx, customer.ID, tx.ID, -input.RedeemPoints, domain.PointRedeem, "Redeem on "+tx.InvoiceNo, now); err != nil {
			return nil, err
		}
	}
	if customer != nil && alloc.PointsEarned > 0 {
		customerPoints += alloc.PointsEarned
		if err := addPoints(ctx, pgTx, customer.ID, tx.ID, alloc.PointsEarned, domain.PointEarn, "Earn on "+tx.InvoiceNo, now); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	result := &store.SaleResult{
		Transaction:    tx,
		PointsEarned:   alloc.PointsEarned,
		PointsRedeemed: input.RedeemPoints,
	}
	if customer != nil {
		points := customerPoints
		result.CustomerPoints = &points
	}
	return result, nil
}

func lockOrCreateCustomer(ctx context.Context, pgTx *sql.Tx, phone string, name string, now time.Time) (*domain.Customer, error) {
	lock := func() (*domain.Customer, error) {
		var c domain.Customer
		err := pgTx.QueryRowContext(ctx, `
			SELECT id, phone, name, points, created_at
			FROM customers
			WHERE phone = $1
			FOR UPDATE
		`, phone).Scan(&c.ID, &c.Phone, &c.Name, &c.Points, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		return &c, nil
	}

	customer, err := lock()
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	c := domain.Customer{Phone: phone, Name: name, CreatedAt: now}
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO customers (phone, name, points, created_at)
		VALUES ($1,$2,0,$3)
		RETURNING id
	`, phone, name, now).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return lock()
		}
		return nil, err
	}
	return &c, nil
}

func addPoints(ctx context.Context, pgTx *sql.Tx, customerID int64, transactionID int64, points int, pointType string, description string, now time.Time) error {
	_, err := pgTx.ExecContext(ctx, `
		UPDATE customers
		SET points = points + $2
		WHERE id = $1
	`, customerID, points)
	if err != nil {
		return err
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO point_histories (customer_id, transaction_id, points, type, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customerID, transactionID, points, pointType, description, now)
	return err
}

func (s *Store) FindTransactionByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	return s.findTransaction(ctx, `WHERE id = $1`, id)
}

func (s *Store) FindTransactionByInvoice(ctx context.Context, invoiceNo string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, `WHERE invoice_no = $1`, invoiceNo)
}

func (s *Store) findTransaction(ctx context.Context, where string, arg any) (*domain.Transaction, error) {
	var tx domain.Transaction
	var customerID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, invoice_no, total, payment_method, type, customer_id, created_by, created_at
		FROM transactions
		`+where, arg).Scan(&tx.ID, &tx.InvoiceNo, &tx.Total, &tx.PaymentMethod, &tx.Type, &customerID, &tx.CreatedBy, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if customerID.Valid {
		id := customerID.Int64
		tx.CustomerID = &id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, product_id, product_name, price, cost_price, qty, subtotal
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY id
	`, tx.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.TransactionItem
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.ProductID, &item.ProductName, &item.Price, &item.CostPrice, &item.Qty, &item.Subtotal); err != nil {
			return nil, err
		}
		tx.Items = append(tx.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) GetSalesReport(ctx context.Context, from time.Time, to time.Time) (domain.SalesReport, error) {
	report := domain.SalesReport{
		StartDate: from.Format(domain.DateLayout),
		EndDate:   to.Add(-time.Second).Format(domain.DateLayout),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total), 0)
		FROM transactions
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&report.Transactions, &report.NetRevenue)
	if err != nil {
		return report, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ti.subtotal), 0), COALESCE(SUM(ti.cost_price * ti.qty), 0)
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		WHERE t.created_at >= $1 AND t.created_at < $2
	`, from, to).Scan(&report.GrossRevenue, &report.TotalCost)
	if err != nil {
		return report, err
	}
	report.Profit = report.GrossRevenue - report.TotalCost

	payRows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(total), 0)
		FROM transactions
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY payment_method
		ORDER BY payment_method
	`, from, to)
	if err != nil {
		return report, err
	}
	for payRows.Next() {
		var pb domain.PaymentBreakdown
		if err := payRows.Scan(&pb.Method, &pb.Transactions, &pb.Total); err != nil {
			_ = payRows.Close()
			return report, err
		}
		report.ByPayment = append(report.ByPayment, pb)
	}
	if err := payRows.Err(); err != nil {
		_ = payRows.Close()
		return report, err
	}
	_ = payRows.Close()

	topRows, err := s.db.QueryContext(ctx, `
		SELECT ti.product_id, MIN(ti.product_name), SUM(ti.qty)
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		WHERE t.created_at >= $1 AND t.created_at < $2
		GROUP BY ti.product_id
		ORDER BY SUM(ti.qty) DESC, MIN(ti.product_name)
		LIMIT 5
	`, from, to)
	if err != nil {
		return report, err
	}
	for topRows.Next() {
		var top domain.TopProduct
		if err := topRows.Scan(&top.ProductID, &top.Name, &top.Qty); err != nil {
			_ = topRows.Close()
			return report, err
		}
		report.TopProducts = append(report.TopProducts, top)
	}
	if err := topRows.Err(); err != nil {
		_ = topRows.Close()
		return report, err
	}
	_ = topRows.Close()

	if to.Sub(from) <= 24*time.Hour {
		hourRows, err := s.db.QueryContext(ctx, `
			SELECT EXTRACT(HOUR FROM created_at)::int, COALESCE(SUM(total), 0)
			FROM transactions
			WHERE created_at >= $1 AND created_at < $2
			GROUP BY 1
			ORDER BY 1
		`, from, to)
		if err != nil {
			return report, err
		}
		for hourRows.Next() {
			var h domain.HourlySale
			if err := hourRows.Scan(&h.Hour, &h.Total); err != nil {
				_ = hourRows.Close()
				return report, err
			}
			report.HourlySales = append(report.HourlySales, h)
		}
		if err := hourRows.Err(); err != nil {
			_ = hourRows.Close()
			return report, err
		}
		_ = hourRows.Close()
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN points > 0 THEN points ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN points < 0 THEN -points ELSE 0 END), 0)
		FROM point_histories
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&report.PointsEarned, &report.PointsRedeemed)
	if err != nil {
		return report, err
	}
	report.PointsNet = report.PointsEarned - report.PointsRedeemed

	return report, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrInvalidInput
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var stockDate time.Time
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.CostPrice, &p.LoyaltyPointValue,
		&p.DailyStock, &p.Stock, &stockDate, &p.IsUnlimited, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.StockDate = stockDate.Format(domain.DateLayout)
	return p, nil
}

func scanPointHistory(rows *sql.Rows) ([]domain.PointHistory, error) {
	history := make([]domain.PointHistory, 0, 16)
	for rows.Next() {
		var h domain.PointHistory
		var transactionID sql.NullInt64
		if err := rows.Scan(&h.ID, &h.CustomerID, &transactionID, &h.Points, &h.Type, &h.Description, &h.CreatedAt); err != nil {
			return nil, err
		}
		if transactionID.Valid {
			id := transactionID.Int64
			h.TransactionID = &id
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
