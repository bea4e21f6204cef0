package perf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlocks(t *testing.T) {
	rp := MakeNewRequestPerf("GET [^/api/bans$]", "GET", "/api/bans")

	outer := rp.StartBlock("MIDDLEWARE", "Enforce bans")
	inner := rp.StartBlock("SQL", "Check IP ban")
	inner.End()
	assert.False(t, rp.Blocks[1].End.IsZero())
	assert.True(t, rp.Blocks[0].End.IsZero())

	outer.End()
	rp.EndRequest()
	assert.False(t, rp.End.IsZero())
	assert.Len(t, rp.Blocks, 2)
}

func TestNilPerf(t *testing.T) {
	var rp *RequestPerf
	h := rp.StartBlock("SQL", "background query")
	h.End()
	rp.EndRequest()

	assert.Nil(t, ExtractPerf(context.Background()))
}
