package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/demandcast/backend/internal/contracts"
)

// Repository reads raw restaurant orders from Postgres
// Orders(Id, DateCreated, BusinessID) ⨝ OrderDetails(OrderID, ItemID, Quantity, UnitPrice)
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository 새 저장소 생성
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const observationsQuery = `
	SELECT
		o."BusinessID"                   AS store,
		d."ItemID"                       AS item,
		(o."DateCreated")::date          AS sale_date,
		SUM(d."Quantity")::float8        AS quantity,
		COALESCE(AVG(d."UnitPrice"), 0)::float8 AS unit_price
	FROM "Orders" o
	JOIN "OrderDetails" d ON d."OrderID" = o."Id"
	WHERE o."DateCreated" >= $1 AND o."DateCreated" < $2
	GROUP BY 1, 2, 3
	ORDER BY 1, 2, 3`

// Observations aggregates order lines to one observation per (store, item, day)
func (r *Repository) Observations(ctx context.Context, from, to time.Time) ([]contracts.SalesObservation, error) {
	rows, err := r.pool.Query(ctx, observationsQuery, from, to)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}

	obs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.SalesObservation, error) {
		var o contracts.SalesObservation
		var saleDate time.Time
		if err := row.Scan(&o.Key.Store, &o.Key.Item, &saleDate, &o.Quantity, &o.UnitPrice); err != nil {
			return o, err
		}
		o.Date = contracts.Day(saleDate)
		return o, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan observations: %w", err)
	}

	return obs, nil
}

// DistinctEntities returns the (store, item) pairs sold inside [from, to), sorted
func (r *Repository) DistinctEntities(ctx context.Context, from, to time.Time) ([]contracts.EntityKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT o."BusinessID", d."ItemID"
		FROM "Orders" o
		JOIN "OrderDetails" d ON d."OrderID" = o."Id"
		WHERE o."DateCreated" >= $1 AND o."DateCreated" < $2
		ORDER BY 1, 2`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}

	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.EntityKey, error) {
		var k contracts.EntityKey
		err := row.Scan(&k.Store, &k.Item)
		return k, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan entities: %w", err)
	}
	return keys, nil
}

// ItemNames reads the menu catalog of one store
func (r *Repository) ItemNames(ctx context.Context, store int) (map[int]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT "Id", "Name"
		FROM "Items"
		WHERE "BusinessID" = $1`, store)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	names := make(map[int]string)
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		names[id] = name
	}

	return names, rows.Err()
}

// SeedSchema creates the raw tables used by the seed command
const SeedSchema = `
	CREATE TABLE IF NOT EXISTS "Orders" (
		"Id"          BIGSERIAL PRIMARY KEY,
		"DateCreated" TIMESTAMPTZ NOT NULL,
		"BusinessID"  INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS "OrderDetails" (
		"Id"        BIGSERIAL PRIMARY KEY,
		"OrderID"   BIGINT NOT NULL REFERENCES "Orders"("Id"),
		"ItemID"    INTEGER NOT NULL,
		"Quantity"  INTEGER NOT NULL,
		"UnitPrice" NUMERIC(10, 2) NOT NULL
	);
	CREATE TABLE IF NOT EXISTS "Items" (
		"Id"         INTEGER NOT NULL,
		"BusinessID" INTEGER NOT NULL,
		"Name"       TEXT NOT NULL,
		PRIMARY KEY ("Id", "BusinessID")
	);
	CREATE INDEX IF NOT EXISTS idx_orders_date ON "Orders" ("DateCreated");`

// Seed writes observations as one order per (store, day) with one line per item.
// 대량 insert는 pgx.Batch로 처리
func (r *Repository) Seed(ctx context.Context, obs []contracts.SalesObservation, names map[int]string) (int, error) {
	if _, err := r.pool.Exec(ctx, SeedSchema); err != nil {
		return 0, fmt.Errorf("create raw schema: %w", err)
	}

	type orderKey struct {
		store int
		date  time.Time
	}
	orders := make(map[orderKey][]contracts.SalesObservation)
	var keys []orderKey
	stores := make(map[int]bool)
	for _, o := range obs {
		k := orderKey{store: o.Key.Store, date: o.Date}
		if _, ok := orders[k]; !ok {
			keys = append(keys, k)
		}
		orders[k] = append(orders[k], o)
		stores[o.Key.Store] = true
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback(ctx)

	lines := 0
	for _, k := range keys {
		var orderID int64
		// 정오로 기록해 타임존 경계 문제 방지
		if err := tx.QueryRow(ctx,
			`INSERT INTO "Orders" ("DateCreated", "BusinessID") VALUES ($1, $2) RETURNING "Id"`,
			k.date.Add(12*time.Hour), k.store,
		).Scan(&orderID); err != nil {
			return 0, fmt.Errorf("insert order: %w", err)
		}

		batch := &pgx.Batch{}
		for _, o := range orders[k] {
			batch.Queue(
				`INSERT INTO "OrderDetails" ("OrderID", "ItemID", "Quantity", "UnitPrice") VALUES ($1, $2, $3, $4)`,
				orderID, o.Key.Item, int(o.Quantity), o.UnitPrice,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for range orders[k] {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return 0, fmt.Errorf("insert order detail: %w", err)
			}
			lines++
		}
		if err := br.Close(); err != nil {
			return 0, fmt.Errorf("close batch: %w", err)
		}
	}

	for store := range stores {
		for id, name := range names {
			if _, err := tx.Exec(ctx,
				`INSERT INTO "Items" ("Id", "BusinessID", "Name") VALUES ($1, $2, $3)
				 ON CONFLICT ("Id", "BusinessID") DO UPDATE SET "Name" = EXCLUDED."Name"`,
				id, store, name,
			); err != nil {
				return 0, fmt.Errorf("upsert item: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}

	return lines, nil
}
