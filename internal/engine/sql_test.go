package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrdersSchema() SQLSchema {
	return SQLSchema{Tables: map[string][]string{
		"orders": {"id", "customer_id", "total", "status"},
	}}
}

func TestSQLAdapterAllowsSimpleSelect(t *testing.T) {
	a := NewSQLAdapter()
	result, err := a.Verify(context.Background(), SQLTask{
		Query:  "SELECT id, total FROM orders WHERE status = 'paid'",
		Schema: testOrdersSchema(),
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictVerified, result.Verdict)
}

func TestSQLAdapterRejectsNonSelect(t *testing.T) {
	a := NewSQLAdapter()
	result, err := a.Verify(context.Background(), SQLTask{
		Query:  "DELETE FROM orders WHERE id = 1",
		Schema: testOrdersSchema(),
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictUnsafe, result.Verdict)
}

func TestSQLAdapterRejectsStackedStatements(t *testing.T) {
	a := NewSQLAdapter()
	result, err := a.Verify(context.Background(), SQLTask{
		Query:  "SELECT id FROM orders; DROP TABLE orders;",
		Schema: testOrdersSchema(),
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictUnsafe, result.Verdict)
}

func TestSQLAdapterRejectsOutOfSchemaTable(t *testing.T) {
	a := NewSQLAdapter()
	result, err := a.Verify(context.Background(), SQLTask{
		Query:  "SELECT id FROM users",
		Schema: testOrdersSchema(),
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictUnsafe, result.Verdict)
}

func TestSQLAdapterRejectsOutOfSchemaColumn(t *testing.T) {
	a := NewSQLAdapter()
	result, err := a.Verify(context.Background(), SQLTask{
		Query:  "SELECT ssn FROM orders",
		Schema: testOrdersSchema(),
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictUnsafe, result.Verdict)
}
