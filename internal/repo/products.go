package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/techbreeze/order-service/internal/entities"
	"github.com/techbreeze/order-service/pkg/trm"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type productsRepo struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func NewProductsRepo(db *sqlx.DB) *productsRepo {
	return &productsRepo{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// GetVariantForUpdate locks the variant row for the rest of the transaction
// so the stock check and decrement cannot race a concurrent checkout.
func (r *productsRepo) GetVariantForUpdate(ctx context.Context, productUID uuid.UUID, variant string) (entities.Variant, error) {
	exists, err := r.productExists(ctx, productUID)
	if err != nil {
		return entities.Variant{}, err
	}
	if !exists {
		return entities.Variant{}, entities.ErrProductNotFound
	}

	query, args := r.qb.Select("product_uid", "variant", "price", "stock").
		From("product_variants").
		Where(sq.Eq{"product_uid": productUID, "variant": variant}).
		Suffix("FOR UPDATE").
		MustSql()

	var v Variant
	err = r.getContext(ctx, &v, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Variant{}, entities.ErrVariantNotFound
	}
	if err != nil {
		return entities.Variant{}, fmt.Errorf("failed to get product variant: %w", err)
	}
	return VariantToEntity(v), nil
}

func (r *productsRepo) DecrementStock(ctx context.Context, productUID uuid.UUID, variant string, quantity int) error {
	query, args := r.qb.Update("product_variants").
		Set("stock", sq.Expr("stock - ?", quantity)).
		Where(sq.Eq{"product_uid": productUID, "variant": variant}).
		Where(sq.GtOrEq{"stock": quantity}).
		MustSql()

	res, err := r.execContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return entities.ErrInsufficientStock
	}
	return nil
}

func (r *productsRepo) productExists(ctx context.Context, productUID uuid.UUID) (bool, error) {
	query, args := r.qb.Select("1").
		From("products").
		Where(sq.Eq{"product_uid": productUID}).
		MustSql()

	var one int
	err := r.getContext(ctx, &one, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check product: %w", err)
	}
	return true, nil
}

func (r *productsRepo) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return r.db.ExecContext(ctx, query, args...)
}

func (r *productsRepo) getContext(ctx context.Context, dest any, query string, args ...any) error {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return r.db.GetContext(ctx, dest, query, args...)
}
