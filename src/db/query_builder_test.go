package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryBuilder(t *testing.T) {
	t.Run("numbers placeholders in order", func(t *testing.T) {
		var qb QueryBuilder
		qb.Add("SELECT * FROM bans WHERE ip_address = $?", "1.2.3.4")
		qb.Add("AND (board_id = $? OR board_id IS NULL)", "tech")
		qb.Add("LIMIT $? OFFSET $?", 10, 20)

		assert.Equal(t, "SELECT * FROM bans WHERE ip_address = $1\nAND (board_id = $2 OR board_id IS NULL)\nLIMIT $3 OFFSET $4\n", qb.String())
		assert.Equal(t, []any{"1.2.3.4", "tech", 10, 20}, qb.Args())
	})
	t.Run("joined chunks", func(t *testing.T) {
		var qb QueryBuilder
		qb.Add("UPDATE bans SET")
		qb.AddJoined(", ", []Chunk{
			C("reason = $?", "spam"),
			C("is_active = $?", false),
		})
		qb.Add("WHERE id = $?", 5)

		assert.Equal(t, "UPDATE bans SET\nreason = $1\n, is_active = $2\nWHERE id = $3\n", qb.String())
		assert.Equal(t, []any{"spam", false, 5}, qb.Args())
	})
	t.Run("mismatched arguments panic", func(t *testing.T) {
		var qb QueryBuilder
		assert.Panics(t, func() {
			qb.Add("a = $? AND b = $?", 1)
		})
	})
}
