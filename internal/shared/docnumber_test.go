package shared

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type counterQuerier struct {
	counters map[string]int64
	lastSQL  string
}

type counterRow struct {
	value int64
}

func (r counterRow) Scan(dest ...interface{}) error {
	*dest[0].(*int64) = r.value
	return nil
}

func (q *counterQuerier) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	q.lastSQL = sql
	key := args[0].(string)
	if q.counters == nil {
		q.counters = make(map[string]int64)
	}
	q.counters[key]++
	return counterRow{value: q.counters[key]}
}

func TestNextDocNumber(t *testing.T) {
	q := &counterQuerier{}
	ctx := context.Background()

	first, err := NextDocNumber(ctx, q, "PED", 2026)
	require.NoError(t, err)
	require.Equal(t, "PED-2026-0001", first)

	second, err := NextDocNumber(ctx, q, "PED", 2026)
	require.NoError(t, err)
	require.Equal(t, "PED-2026-0002", second)

	other, err := NextDocNumber(ctx, q, "ENT", 2026)
	require.NoError(t, err)
	require.Equal(t, "ENT-2026-0001", other)

	require.Contains(t, q.lastSQL, "ON CONFLICT (prefix, year)")
}

func TestNextDocNumberPadsPastFourDigits(t *testing.T) {
	q := &counterQuerier{counters: map[string]int64{"PED": 9999}}

	n, err := NextDocNumber(context.Background(), q, "PED", 2026)
	require.NoError(t, err)
	require.Equal(t, "PED-2026-10000", n)
}
