package shared

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the minimal query surface the number generator needs, so it
// works against a pool or an open transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// NextDocNumber allocates the next PREFIX-YYYY-NNNN document number from a
// per-(prefix, year) counter row in one atomic statement. The year in the
// key resets the sequence on rollover; concurrent callers cannot collide.
func NextDocNumber(ctx context.Context, q Querier, prefix string, year int) (string, error) {
	var seq int64
	err := q.QueryRow(ctx, `
		INSERT INTO doc_counters (prefix, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, year)
		DO UPDATE SET last_value = doc_counters.last_value + 1
		RETURNING last_value
	`, prefix, year).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("next %s number: %w", prefix, err)
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq), nil
}
