package spend

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/skillpay/x402-skills"
)

func TestGovernorLimitedSession(t *testing.T) {
	g := New()
	require.NoError(t, g.SetLimit("1.00"))
	require.NoError(t, g.RecordSpend("600000"))

	assert.False(t, g.CanSpend("500000"))
	assert.True(t, g.CanSpend("400000"))

	want := Status{MaxBudget: "1.00", Spent: "0.60", Remaining: "0.40", CallCount: 1, IsLimited: true}
	if diff := cmp.Diff(want, g.Status()); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestGovernorUnlimited(t *testing.T) {
	g := New()
	assert.True(t, g.CanSpend("999999999999"))

	require.NoError(t, g.RecordSpend("10000"))
	want := Status{MaxBudget: Unlimited, Spent: "0.01", Remaining: Unlimited, CallCount: 1}
	if diff := cmp.Diff(want, g.Status()); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestGovernorSetLimit(t *testing.T) {
	tests := []struct {
		name    string
		limit   string
		wantErr bool
		wantMax string
	}{
		{name: "plain", limit: "2.5", wantMax: "2.50"},
		{name: "dollar prefix", limit: "$0.10", wantMax: "0.10"},
		{name: "floors sub-atomic", limit: "0.0000019", wantMax: "0.00"},
		{name: "zero", limit: "0", wantMax: "0.00"},
		{name: "negative", limit: "-1", wantErr: true},
		{name: "garbage", limit: "ten", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			err := g.SetLimit(tt.limit)
			if tt.wantErr {
				assert.ErrorIs(t, err, x402.ErrValidation)
				assert.False(t, g.Status().IsLimited)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMax, g.Status().MaxBudget)
		})
	}
}

func TestGovernorLimitKeepsSpend(t *testing.T) {
	g := New()
	require.NoError(t, g.RecordSpend("300000"))
	require.NoError(t, g.SetLimit("0.50"))

	assert.True(t, g.CanSpend("200000"))
	assert.False(t, g.CanSpend("200001"))
}

func TestGovernorRecordSpendDoesNotEnforce(t *testing.T) {
	g := New()
	require.NoError(t, g.SetLimit("0.01"))
	require.NoError(t, g.RecordSpend("50000"))

	status := g.Status()
	assert.Equal(t, "0.05", status.Spent)
	assert.Equal(t, "0.00", status.Remaining)
	assert.False(t, g.CanSpend("0") && g.CanSpend("1"))
}

func TestGovernorRecordSpendValidation(t *testing.T) {
	g := New()
	assert.ErrorIs(t, g.RecordSpend("1.5"), x402.ErrValidation)
	assert.ErrorIs(t, g.RecordSpend("-1"), x402.ErrValidation)
	assert.Zero(t, g.Status().CallCount)
	assert.False(t, g.CanSpend("abc"))
}

func TestGovernorClearLimit(t *testing.T) {
	g := New()
	require.NoError(t, g.SetLimit("0.01"))
	require.NoError(t, g.RecordSpend("10000"))
	g.ClearLimit()

	assert.True(t, g.CanSpend("1000000"))
	status := g.Status()
	assert.False(t, status.IsLimited)
	assert.Equal(t, "0.01", status.Spent)
}

func TestGovernorResetIdempotent(t *testing.T) {
	g := New()
	require.NoError(t, g.SetLimit("1.00"))
	require.NoError(t, g.RecordSpend("250000"))
	require.NoError(t, g.RecordSpend("250000"))

	g.Reset()
	once := g.Status()
	g.Reset()
	twice := g.Status()

	assert.Equal(t, once, twice)
	assert.Equal(t, Status{MaxBudget: "1.00", Spent: "0.00", Remaining: "1.00", CallCount: 0, IsLimited: true}, twice)
}

func TestGovernorRemaining(t *testing.T) {
	g := New()
	remaining, limited := g.Remaining()
	assert.False(t, limited)
	assert.Nil(t, remaining)

	require.NoError(t, g.SetLimit("0.05"))
	require.NoError(t, g.RecordSpend("20000"))
	remaining, limited = g.Remaining()
	assert.True(t, limited)
	assert.Equal(t, "30000", remaining.String())

	require.NoError(t, g.RecordSpend("40000"))
	remaining, _ = g.Remaining()
	assert.Equal(t, "0", remaining.String())
}
