// Command verify-db audits the ledger's invariants against a live database:
// order totals must equal the sum of their line subtotals, stock counters must
// never be negative, an open container remainder must stay below the container
// volume, and closed orders must carry complete payment data.
package main

import (
	"context"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func main() {
	_ = godotenv.Load()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		log.Fatal("[CONNECT] DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		log.Fatalf("[CONNECT] failed to create pool: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("[CONNECT] failed to ping database: %v", err)
	}
	log.Println("[CONNECT] success")

	failures := 0
	failures += checkOrderTotals(ctx, pool)
	failures += checkStockCounters(ctx, pool)
	failures += checkOpenRemainders(ctx, pool)
	failures += checkClosedPayments(ctx, pool)

	if failures > 0 {
		log.Fatalf("[FAIL] %d invariant violation(s) found", failures)
	}
	log.Println("[DONE] all invariants hold")
}

// checkOrderTotals verifies total == Σ(quantity × unit_price) for every order.
func checkOrderTotals(ctx context.Context, pool *pgxpool.Pool) int {
	rows, err := pool.Query(ctx, `
		SELECT o.id, o.total, COALESCE(SUM(ol.quantity * ol.unit_price), 0)
		FROM orders o
		LEFT JOIN order_lines ol ON ol.order_id = o.id
		GROUP BY o.id, o.total
	`)
	if err != nil {
		log.Fatalf("[CHECK] order totals query failed: %v", err)
	}
	defer rows.Close()

	failures := 0
	for rows.Next() {
		var id int64
		var total, lineSum decimal.Decimal
		if err := rows.Scan(&id, &total, &lineSum); err != nil {
			log.Fatalf("[CHECK] order totals scan failed: %v", err)
		}
		if !total.Equal(lineSum) {
			log.Printf("[FAIL] order %d: total %s, line sum %s", id, total.StringFixed(2), lineSum.StringFixed(2))
			failures++
		}
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("[CHECK] order totals iteration failed: %v", err)
	}
	log.Printf("[CHECK] order totals: %d violation(s)", failures)
	return failures
}

func checkStockCounters(ctx context.Context, pool *pgxpool.Pool) int {
	return countViolations(ctx, pool, "stock counters", `
		SELECT COUNT(*) FROM products
		WHERE stock_units < 0 OR open_container_remainder < 0
	`)
}

func checkOpenRemainders(ctx context.Context, pool *pgxpool.Pool) int {
	return countViolations(ctx, pool, "open remainders", `
		SELECT COUNT(*) FROM products
		WHERE is_volume_metered
		  AND volume_per_container IS NOT NULL
		  AND open_container_remainder >= volume_per_container
	`)
}

func checkClosedPayments(ctx context.Context, pool *pgxpool.Pool) int {
	return countViolations(ctx, pool, "closed payments", `
		SELECT COUNT(*) FROM orders
		WHERE status = 'CLOSED'
		  AND (payment_method IS NULL OR amount_paid IS NULL OR closed_at IS NULL)
	`)
}

func countViolations(ctx context.Context, pool *pgxpool.Pool, name, query string) int {
	var n int
	if err := pool.QueryRow(ctx, query).Scan(&n); err != nil {
		log.Fatalf("[CHECK] %s query failed: %v", name, err)
	}
	log.Printf("[CHECK] %s: %d violation(s)", name, n)
	return n
}
