package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Aligned(t *testing.T) {
	table := NewTable("pass", "succeeded")
	table.Row(1, 10)
	table.Row(12, 3)
	assert.Equal(t, "pass  succeeded\n1     10\n12    3\n", table.String())
}

func TestTable_MissingCells(t *testing.T) {
	table := NewTable("a", "b", "c")
	table.Row("x")
	lines := strings.Split(table.String(), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "a  b  c", lines[0])
	assert.Equal(t, "x", strings.TrimRight(lines[1], " "))
}

func TestTable_Rowf(t *testing.T) {
	table := NewTable()
	table.Rowf("total:\t%d", 5)
	table.Rowf("retries:\t%.1f", 1.5)
	assert.Equal(t, "total:    5\nretries:  1.5\n", table.String())
}
