package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/bizledger/internal/ledger"
	"github.com/noah-isme/bizledger/internal/money"
	"github.com/noah-isme/bizledger/internal/sale"
	"github.com/noah-isme/bizledger/internal/store"
)

const insertSaleSQL = `
INSERT INTO sales (id, business_id, sale_number, customer_id, employee_id, currency,
    subtotal, tax_amount, discount_amount, total_amount, amount_paid, balance_due,
    payment_method, payment_status, notes, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

const insertItemSQL = `
INSERT INTO sale_items (id, sale_id, business_id, position, service_ref, description,
    quantity, unit_price, discount, tax_bps, subtotal, tax, total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const insertPaymentSQL = `
INSERT INTO payments (id, sale_id, business_id, amount, method, status, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const selectSaleSQL = `
SELECT id, business_id, sale_number, customer_id, employee_id, currency,
    subtotal, tax_amount, discount_amount, total_amount, amount_paid, balance_due,
    payment_method, payment_status, notes, version, created_at, updated_at
FROM sales
WHERE business_id = $1 AND id = $2`

const selectItemsSQL = `
SELECT id, position, service_ref, description, quantity, unit_price, discount, tax_bps, subtotal, tax, total
FROM sale_items
WHERE sale_id = $1
ORDER BY position`

const updateBalanceSQL = `
UPDATE sales
SET amount_paid = $4, balance_due = $5, payment_status = $6, version = version + 1, updated_at = $7
WHERE business_id = $1 AND id = $2 AND version = $3`

// CreateSale implements sale.Store.
func (s *Store) CreateSale(ctx context.Context, d sale.Draft) error {
	h := d.Sale
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertSaleSQL,
			h.ID, h.BusinessID, h.SaleNumber, pgUUID(h.CustomerID), pgUUID(h.EmployeeID), h.Currency,
			h.Subtotal.MinorUnits(), h.TaxAmount.MinorUnits(), h.DiscountAmount.MinorUnits(), h.TotalAmount.MinorUnits(),
			h.AmountPaid.MinorUnits(), h.BalanceDue.MinorUnits(),
			string(h.PaymentMethod), string(h.PaymentStatus), h.Notes, h.Version, h.CreatedAt, h.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert sale: %w", mapErr(err))
		}

		if len(h.Lines) > 0 {
			batch := &pgx.Batch{}
			for _, l := range h.Lines {
				batch.Queue(insertItemSQL,
					l.ID, h.ID, h.BusinessID, l.Position, l.ServiceRef, l.Description,
					l.Quantity, l.UnitPrice.MinorUnits(), l.Discount.MinorUnits(), money.BasisPoints(l.TaxRate),
					l.Subtotal.MinorUnits(), l.Tax.MinorUnits(), l.Total.MinorUnits(),
				)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("insert sale items: %w", mapErr(err))
			}
		}

		if d.Payment != nil {
			if err := insertPayment(ctx, tx, *d.Payment); err != nil {
				return err
			}
		}
		if d.Commission != nil {
			if err := insertCommission(ctx, tx, *d.Commission); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertPayment(ctx context.Context, tx pgx.Tx, p sale.Payment) error {
	_, err := tx.Exec(ctx, insertPaymentSQL,
		p.ID, p.SaleID, p.BusinessID, p.Amount.MinorUnits(), string(p.Method), string(p.Status), p.Reference, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", mapErr(err))
	}
	return nil
}

// GetSale implements sale.Store.
func (s *Store) GetSale(ctx context.Context, businessID, saleID uuid.UUID) (sale.Sale, error) {
	var (
		out                                      sale.Sale
		customer, employee                       pgtype.UUID
		subtotal, tax, discount, total, paid, due int64
		method, status                           string
	)
	err := s.pool.QueryRow(ctx, selectSaleSQL, businessID, saleID).Scan(
		&out.ID, &out.BusinessID, &out.SaleNumber, &customer, &employee, &out.Currency,
		&subtotal, &tax, &discount, &total, &paid, &due,
		&method, &status, &out.Notes, &out.Version, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return sale.Sale{}, mapErr(err)
	}
	out.CustomerID = uuidPtr(customer)
	out.EmployeeID = uuidPtr(employee)
	out.Subtotal = money.FromMinor(subtotal)
	out.TaxAmount = money.FromMinor(tax)
	out.DiscountAmount = money.FromMinor(discount)
	out.TotalAmount = money.FromMinor(total)
	out.AmountPaid = money.FromMinor(paid)
	out.BalanceDue = money.FromMinor(due)
	out.PaymentMethod = sale.PaymentMethod(method)
	if out.PaymentStatus, err = ledger.ParseStatus(status); err != nil {
		return sale.Sale{}, err
	}

	rows, err := s.pool.Query(ctx, selectItemsSQL, saleID)
	if err != nil {
		return sale.Sale{}, fmt.Errorf("query sale items: %w", err)
	}
	out.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (sale.LineItem, error) {
		var (
			li                                              sale.LineItem
			unit, disc, taxBps, lineSub, lineTax, lineTotal int64
		)
		if err := row.Scan(&li.ID, &li.Position, &li.ServiceRef, &li.Description, &li.Quantity,
			&unit, &disc, &taxBps, &lineSub, &lineTax, &lineTotal); err != nil {
			return sale.LineItem{}, err
		}
		li.UnitPrice = money.FromMinor(unit)
		li.Discount = money.FromMinor(disc)
		li.TaxRate = money.FromBasisPoints(taxBps)
		li.Subtotal = money.FromMinor(lineSub)
		li.Tax = money.FromMinor(lineTax)
		li.Total = money.FromMinor(lineTotal)
		return li, nil
	})
	if err != nil {
		return sale.Sale{}, fmt.Errorf("scan sale items: %w", err)
	}
	return out, nil
}

// ListPayments implements sale.Store.
func (s *Store) ListPayments(ctx context.Context, businessID, saleID uuid.UUID) ([]sale.Payment, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, sale_id, business_id, amount, method, status, reference, created_at
FROM payments
WHERE business_id = $1 AND sale_id = $2
ORDER BY created_at, id`, businessID, saleID)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (sale.Payment, error) {
		var (
			p              sale.Payment
			amount         int64
			method, status string
		)
		if err := row.Scan(&p.ID, &p.SaleID, &p.BusinessID, &amount, &method, &status, &p.Reference, &p.CreatedAt); err != nil {
			return sale.Payment{}, err
		}
		p.Amount = money.FromMinor(amount)
		p.Method = sale.PaymentMethod(method)
		p.Status = ledger.PaymentStatus(status)
		return p, nil
	})
}

// AppendPayment implements sale.Store. The balance update is a compare-and-swap
// on version; zero affected rows means either a concurrent writer won or the
// sale is gone.
func (s *Store) AppendPayment(ctx context.Context, u sale.BalanceUpdate) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateBalanceSQL,
			u.BusinessID, u.SaleID, u.ExpectedVersion,
			u.Balance.Paid.MinorUnits(), u.Balance.Due.MinorUnits(), string(u.Balance.Status), u.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update balance: %w", mapErr(err))
		}
		if tag.RowsAffected() == 0 {
			return staleOrMissing(ctx, tx, u.BusinessID, u.SaleID)
		}
		return insertPayment(ctx, tx, u.Payment)
	})
}

func staleOrMissing(ctx context.Context, tx pgx.Tx, businessID, saleID uuid.UUID) error {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE business_id = $1 AND id = $2)`, businessID, saleID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check sale: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrStaleBalance
}
