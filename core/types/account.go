package types

import "math/big"

// Account tracks the balances held by a single address. BalanceGUARD is the
// chain's native coin; TokenBalances holds fungible token balances keyed by
// symbol.
type Account struct {
	Nonce         uint64              `json:"nonce"`
	BalanceGUARD  *big.Int            `json:"balanceGUARD"`
	TokenBalances map[string]*big.Int `json:"tokenBalances,omitempty"`
}

// EnsureDefaults populates nil balance fields so JSON round-trips and
// arithmetic are safe on freshly decoded accounts.
func (a *Account) EnsureDefaults() {
	if a == nil {
		return
	}
	if a.BalanceGUARD == nil {
		a.BalanceGUARD = big.NewInt(0)
	}
	if a.TokenBalances == nil {
		a.TokenBalances = make(map[string]*big.Int)
	}
}

// TokenBalance returns the balance for the supplied token symbol, defaulting
// to zero for unknown tokens.
func (a *Account) TokenBalance(symbol string) *big.Int {
	if a == nil || a.TokenBalances == nil {
		return big.NewInt(0)
	}
	bal, ok := a.TokenBalances[symbol]
	if !ok || bal == nil {
		return big.NewInt(0)
	}
	return bal
}
