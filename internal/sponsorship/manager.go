// Package sponsorship tracks sponsor gas budgets and abuse limits for
// gasless transaction execution, and builds/signs the sponsor's half of
// a sponsored transaction.
package sponsorship

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/Numi2/sui-numi/internal/aggrerrors"
	"github.com/Numi2/sui-numi/internal/signing"
)

// Budget tracks spend against a total allocation over an optional
// rolling window, plus a per-transaction cap.
type Budget struct {
	TotalBudget uint64
	Spent       uint64
	Window      time.Duration // zero means no reset
	LastReset   time.Time
	PerTxLimit  uint64
}

// NewBudget constructs a Budget. A zero window means the budget never
// resets on its own.
func NewBudget(totalBudget, perTxLimit uint64, window time.Duration) *Budget {
	return &Budget{
		TotalBudget: totalBudget,
		Window:      window,
		LastReset:   time.Now(),
		PerTxLimit:  perTxLimit,
	}
}

// CanSpend reports whether amount fits within the per-tx limit and the
// remaining budget, resetting the window first if it has elapsed.
func (b *Budget) CanSpend(amount uint64) bool {
	b.maybeReset()
	if amount > b.PerTxLimit {
		return false
	}
	return b.Spent+amount <= b.TotalBudget
}

// Spend records amount as spent. Callers must have already confirmed
// CanSpend.
func (b *Budget) Spend(amount uint64) {
	b.Spent += amount
}

// Remaining returns the unspent portion of the total budget.
func (b *Budget) Remaining() uint64 {
	if b.Spent >= b.TotalBudget {
		return 0
	}
	return b.TotalBudget - b.Spent
}

func (b *Budget) maybeReset() {
	if b.Window > 0 && time.Since(b.LastReset) >= b.Window {
		b.Spent = 0
		b.LastReset = time.Now()
	}
}

// abuseMetrics tracks transaction count and gas spent within a rolling
// window, independent of the budget's own window.
type abuseMetrics struct {
	txCount        uint64
	gasSpent       uint64
	windowStart    time.Time
	windowDuration time.Duration
}

func newAbuseMetrics(windowDuration time.Duration) *abuseMetrics {
	return &abuseMetrics{windowStart: time.Now(), windowDuration: windowDuration}
}

func (m *abuseMetrics) recordTx(gas uint64) {
	if time.Since(m.windowStart) >= m.windowDuration {
		m.txCount, m.gasSpent, m.windowStart = 0, 0, time.Now()
	}
	m.txCount++
	m.gasSpent += gas
}

func (m *abuseMetrics) checkLimits(maxTxPerWindow, maxGasPerWindow uint64) bool {
	if time.Since(m.windowStart) >= m.windowDuration {
		return true
	}
	return m.txCount <= maxTxPerWindow && m.gasSpent <= maxGasPerWindow
}

// AbuseConfig bounds how much gas and how many transactions a single
// user may consume within a window before sponsorship is refused.
type AbuseConfig struct {
	MaxTxPerWindow  uint64
	MaxGasPerWindow uint64
	WindowDuration  time.Duration
}

// DefaultAbuseConfig matches the original's defaults: 1000 tx/hour, 100B
// gas units/hour.
func DefaultAbuseConfig() AbuseConfig {
	return AbuseConfig{
		MaxTxPerWindow:  1000,
		MaxGasPerWindow: 100_000_000_000,
		WindowDuration:  time.Hour,
	}
}

// Request describes one sponsorship ask.
type Request struct {
	UserAddress  string
	RouteClass   string
	EstimatedGas uint64
}

// Manager is the sponsor's gas budget ledger and signer. It holds no
// connection to the chain itself; callers supply the compiled
// transaction kind and gas object refs from the venue adapter.
type Manager struct {
	sponsorKeyHex  string
	sponsorAddress string
	abuseConfig    AbuseConfig

	mu           sync.Mutex
	gasCoins     []string
	gasPrice     uint64
	userBudgets  map[string]*Budget
	routeBudgets map[string]*Budget
	abuse        map[string]*abuseMetrics
}

// NewManager constructs a Manager for the given sponsor key/address and
// starting gas price.
func NewManager(sponsorKeyHex, sponsorAddress string, gasPrice uint64, abuseConfig AbuseConfig) *Manager {
	return &Manager{
		sponsorKeyHex:  sponsorKeyHex,
		sponsorAddress: sponsorAddress,
		abuseConfig:    abuseConfig,
		gasPrice:       gasPrice,
		userBudgets:    make(map[string]*Budget),
		routeBudgets:   make(map[string]*Budget),
		abuse:          make(map[string]*abuseMetrics),
	}
}

// SponsorAddress returns the sponsor's address.
func (m *Manager) SponsorAddress() string { return m.sponsorAddress }

// UpdateGasCoins replaces the sponsor's available gas coin object ids.
func (m *Manager) UpdateGasCoins(coins []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gasCoins = coins
}

// GasCoinIDs returns a copy of the sponsor's current gas coin ids.
func (m *Manager) GasCoinIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.gasCoins))
	copy(out, m.gasCoins)
	return out
}

// UpdateGasPrice sets the reference gas price used to build sponsored
// transactions, refreshed periodically by a background loop fed by the
// venue adapter.
func (m *Manager) UpdateGasPrice(price uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gasPrice = price
}

// GasPrice returns the current reference gas price.
func (m *Manager) GasPrice() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gasPrice
}

// SetUserBudget installs or replaces a user's sponsorship budget.
func (m *Manager) SetUserBudget(user string, totalBudget, perTxLimit uint64, window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userBudgets[user] = NewBudget(totalBudget, perTxLimit, window)
}

// SetRouteBudget installs or replaces a route class's sponsorship
// budget, checked in addition to the requesting user's budget.
func (m *Manager) SetRouteBudget(routeClass string, totalBudget, perTxLimit uint64, window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routeBudgets[routeClass] = NewBudget(totalBudget, perTxLimit, window)
}

// CanSponsor reports whether req passes the user budget, the route-class
// budget (if one is configured for req.RouteClass), the abuse limits,
// and gas coin availability, in that order. It returns a wrapped
// aggrerrors sentinel describing which check failed.
func (m *Manager) CanSponsor(req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if budget, ok := m.userBudgets[req.UserAddress]; ok {
		if !budget.CanSpend(req.EstimatedGas) {
			return fmt.Errorf("%w: user %s budget exceeded, remaining %d", aggrerrors.ErrBudgetExceeded, req.UserAddress, budget.Remaining())
		}
	}

	if req.RouteClass != "" {
		if budget, ok := m.routeBudgets[req.RouteClass]; ok {
			if !budget.CanSpend(req.EstimatedGas) {
				return fmt.Errorf("%w: route class %s budget exceeded, remaining %d", aggrerrors.ErrBudgetExceeded, req.RouteClass, budget.Remaining())
			}
		}
	}

	metrics, ok := m.abuse[req.UserAddress]
	if !ok {
		metrics = newAbuseMetrics(m.abuseConfig.WindowDuration)
		m.abuse[req.UserAddress] = metrics
	}
	if !metrics.checkLimits(m.abuseConfig.MaxTxPerWindow, m.abuseConfig.MaxGasPerWindow) {
		return fmt.Errorf("%w: user %s", aggrerrors.ErrAbuseDetected, req.UserAddress)
	}

	if len(m.gasCoins) == 0 {
		return fmt.Errorf("%w: no sponsor gas coins available", aggrerrors.ErrBuildTx)
	}

	return nil
}

// BuildSponsoredTransaction combines a gasless transaction kind with the
// sponsor's first available gas object, the user's sender address, the
// requested gas budget, and the current reference gas price into the
// gas-bearing transaction bytes the user and sponsor co-sign. Mirrors
// the original's build_sponsored_transaction_data, which wraps a
// TransactionKind in a TransactionData naming the sender and the
// sponsor's gas object ref; this repo has no Sui BCS TransactionData
// encoder (no Go Sui SDK exists anywhere in the corpus), so the
// combination is a length-prefixed envelope rather than true Sui BCS,
// in keeping with internal/signing's own simplified intent-message
// construction.
func (m *Manager) BuildSponsoredTransaction(txKind []byte, sender string, gasBudget uint64) ([]byte, error) {
	m.mu.Lock()
	gasCoins := m.gasCoins
	gasPrice := m.gasPrice
	m.mu.Unlock()

	if len(gasCoins) == 0 {
		return nil, fmt.Errorf("%w: no sponsor gas object refs available", aggrerrors.ErrBuildTx)
	}
	gasObjectRef := gasCoins[0]

	buf := make([]byte, 0, len(txKind)+len(sender)+len(gasObjectRef)+24)
	buf = appendLenPrefixed(buf, txKind)
	buf = appendLenPrefixed(buf, []byte(sender))
	buf = appendLenPrefixed(buf, []byte(gasObjectRef))
	buf = appendUint64(buf, gasBudget)
	buf = appendUint64(buf, gasPrice)
	return buf, nil
}

func appendLenPrefixed(buf, data []byte) []byte {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(data)))
	buf = append(buf, lenBytes[:]...)
	return append(buf, data...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// SignSponsoredTransaction signs txBCS with the sponsor's key.
func (m *Manager) SignSponsoredTransaction(txBCS []byte) (signing.Signed, error) {
	return signing.SignTxBCSEd25519(txBCS, m.sponsorKeyHex)
}

// RecordSpending updates the user's budget and abuse metrics after a
// sponsored transaction has been built and signed. If req.RouteClass has
// a configured budget, that budget is charged too.
func (m *Manager) RecordSpending(req Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if budget, ok := m.userBudgets[req.UserAddress]; ok {
		budget.Spend(req.EstimatedGas)
	}
	if req.RouteClass != "" {
		if budget, ok := m.routeBudgets[req.RouteClass]; ok {
			budget.Spend(req.EstimatedGas)
		}
	}

	metrics, ok := m.abuse[req.UserAddress]
	if !ok {
		metrics = newAbuseMetrics(m.abuseConfig.WindowDuration)
		m.abuse[req.UserAddress] = metrics
	}
	metrics.recordTx(req.EstimatedGas)
}

// UserBudgetRemaining returns the user's remaining budget, if one is
// configured.
func (m *Manager) UserBudgetRemaining(user string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	budget, ok := m.userBudgets[user]
	if !ok {
		return 0, false
	}
	return budget.Remaining(), true
}
