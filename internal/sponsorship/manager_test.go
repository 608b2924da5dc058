package sponsorship

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Numi2/sui-numi/internal/aggrerrors"
)

func TestBudgetCanSpendRespectsPerTxLimitAndTotal(t *testing.T) {
	b := NewBudget(1000, 100, 0)
	assert.True(t, b.CanSpend(100))
	assert.False(t, b.CanSpend(101))

	b.Spend(100)
	assert.Equal(t, uint64(900), b.Remaining())
	b.Spend(900)
	assert.False(t, b.CanSpend(1))
}

func TestBudgetResetsAfterWindow(t *testing.T) {
	b := NewBudget(1000, 1000, 10*time.Millisecond)
	b.Spend(1000)
	assert.False(t, b.CanSpend(1))

	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.CanSpend(500))
}

func TestManagerRequiresGasCoinsToSponsor(t *testing.T) {
	m := NewManager("deadbeef", "0xsponsor", 1000, DefaultAbuseConfig())
	m.SetUserBudget("0xuser", 1000, 100, 0)

	err := m.CanSponsor(Request{UserAddress: "0xuser", EstimatedGas: 50})
	assert.ErrorIs(t, err, aggrerrors.ErrBuildTx)

	m.UpdateGasCoins([]string{"0xcoin1"})
	err = m.CanSponsor(Request{UserAddress: "0xuser", EstimatedGas: 50})
	assert.NoError(t, err)
}

func TestManagerRejectsOverUserBudget(t *testing.T) {
	m := NewManager("deadbeef", "0xsponsor", 1000, DefaultAbuseConfig())
	m.UpdateGasCoins([]string{"0xcoin1"})
	m.SetUserBudget("0xuser", 100, 100, 0)

	err := m.CanSponsor(Request{UserAddress: "0xuser", EstimatedGas: 200})
	assert.ErrorIs(t, err, aggrerrors.ErrBudgetExceeded)
}

func TestManagerRejectsOverRouteClassBudget(t *testing.T) {
	m := NewManager("deadbeef", "0xsponsor", 1000, DefaultAbuseConfig())
	m.UpdateGasCoins([]string{"0xcoin1"})
	m.SetUserBudget("0xuser", 1_000_000, 1_000_000, 0)
	m.SetRouteBudget("DeepBookSingle", 100, 100, 0)

	err := m.CanSponsor(Request{UserAddress: "0xuser", RouteClass: "DeepBookSingle", EstimatedGas: 200})
	assert.ErrorIs(t, err, aggrerrors.ErrBudgetExceeded)
}

func TestManagerEnforcesAbuseLimits(t *testing.T) {
	cfg := AbuseConfig{MaxTxPerWindow: 1, MaxGasPerWindow: 1_000_000, WindowDuration: time.Hour}
	m := NewManager("deadbeef", "0xsponsor", 1000, cfg)
	m.UpdateGasCoins([]string{"0xcoin1"})
	m.SetUserBudget("0xuser", 1_000_000, 1_000_000, 0)

	assert.NoError(t, m.CanSponsor(Request{UserAddress: "0xuser", EstimatedGas: 10}))
	m.RecordSpending(Request{UserAddress: "0xuser", EstimatedGas: 10})
	m.RecordSpending(Request{UserAddress: "0xuser", EstimatedGas: 10}) // two recorded txs exceed MaxTxPerWindow=1

	err := m.CanSponsor(Request{UserAddress: "0xuser", EstimatedGas: 10})
	assert.ErrorIs(t, err, aggrerrors.ErrAbuseDetected)
}

func TestBuildSponsoredTransactionRequiresGasCoins(t *testing.T) {
	m := NewManager("deadbeef", "0xsponsor", 1000, DefaultAbuseConfig())

	_, err := m.BuildSponsoredTransaction([]byte("tx-kind"), "0xuser", 10_000_000)
	assert.ErrorIs(t, err, aggrerrors.ErrBuildTx)
}

func TestBuildSponsoredTransactionCombinesTxKindSenderAndGasCoin(t *testing.T) {
	m := NewManager("deadbeef", "0xsponsor", 1000, DefaultAbuseConfig())
	m.UpdateGasCoins([]string{"0xcoin1"})

	txKind := []byte("tx-kind")
	out, err := m.BuildSponsoredTransaction(txKind, "0xuser", 10_000_000)
	assert.NoError(t, err)
	assert.NotEqual(t, txKind, out)
	assert.Greater(t, len(out), len(txKind))

	m.UpdateGasCoins([]string{"0xcoin2"})
	outOtherCoin, err := m.BuildSponsoredTransaction(txKind, "0xuser", 10_000_000)
	assert.NoError(t, err)
	assert.NotEqual(t, out, outOtherCoin)
}

func TestRecordSpendingUpdatesUserBudgetRemaining(t *testing.T) {
	m := NewManager("deadbeef", "0xsponsor", 1000, DefaultAbuseConfig())
	m.UpdateGasCoins([]string{"0xcoin1"})
	m.SetUserBudget("0xuser", 1000, 1000, 0)

	m.RecordSpending(Request{UserAddress: "0xuser", EstimatedGas: 300})
	remaining, ok := m.UserBudgetRemaining("0xuser")
	assert.True(t, ok)
	assert.Equal(t, uint64(700), remaining)
}
