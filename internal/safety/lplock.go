/*

This file contains the on-chain LP-holder-distribution analysis.

Flow:
 1. getTokenSupply(lpMint)              -> total LP supply
 2. getTokenLargestAccounts(lpMint)     -> top ~20 LP holders
 3. getMultipleAccounts (jsonParsed)    -> each holder's token authority
 4. getMultipleAccounts (base64)        -> the program owning each authority
 5. classify burned / protocol-held / contract-locked / unlocked

The top ~20 accounts may not cover the full supply. The uncovered remainder
is by definition spread across small holders: it counts as unlocked but
carries no single-whale concern.

*/

package safety

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/karlokr/raydium-lp-bot/internal/logger"
)

var lockLogger = logger.GetForComponent("lp_lock")

const lockCacheTTL = 5 * time.Minute

// Well-known addresses for LP holder classification.
var (
	// burnAddresses receive LP tokens that are gone forever.
	burnAddresses = map[string]bool{
		"1111111111111111111111111111111111111111111": true, // null address
		"1nc1nerator11111111111111111111111111111111": true, // common incinerator
	}

	// raydiumLPAuthority holds initial LP that cannot be withdrawn.
	raydiumLPAuthority = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"

	// lockerPrograms are known time-lock / vesting programs. LP tokens
	// whose authority is a PDA of one of these are contract-locked.
	lockerPrograms = map[string]bool{
		"strmRqUCoQUgGUan5YhzUZa6KqdzwX5L6FpUxfmKg5m":  true, // Streamflow
		"LocpQgucEQHbqNABEYvBMrzJKjWcjEPPwd6i215cQ9a":  true, // Uncx / Liquidify
		"2r5VekMNiWPzi1pWwvJczrdPaZnJG59u91unSrTunwJg": true, // Jupiter Lock
		"FLockTopXvM3MRs5ThJTsSQDQNmzWfnj5s7xUQXKTc1v": true, // Fluxbeam Locker
		"GJa1VEhNhjMEJoeqYyPvH5Ts9XadZAdFmRSi8ijrSU7G": true, // Raydium LP Lock
	}

	systemProgram = "11111111111111111111111111111111"
)

var ErrLockDataUnavailable = errors.New("LP lock data unavailable")

// ChainReader is the subset of the on-chain RPC surface the analyzer
// needs. Implemented by the solana package's client.
type ChainReader interface {
	Call(ctx context.Context, method string, params []any, result any) error
}

// HolderCategory labels one LP holder account.
type HolderCategory string

const (
	HolderBurned         HolderCategory = "burned"
	HolderProtocolLocked HolderCategory = "protocol_locked"
	HolderContractLocked HolderCategory = "contract_locked"
	HolderUnlocked       HolderCategory = "unlocked"
)

// LPHolder is one classified holder of the LP receipt token.
type LPHolder struct {
	Address  string
	Owner    string
	Amount   uint64
	Pct      float64
	Category HolderCategory
}

// LockReport is the outcome of analyzing one LP mint's distribution.
// Percentages describe the circulating LP supply as seen on-chain.
type LockReport struct {
	Available          bool
	TotalSupply        uint64
	BurnedPct          float64
	ProtocolLockedPct  float64
	ContractLockedPct  float64
	UnlockedPct        float64
	SafePct            float64 // burned + protocol + contract
	MaxSingleUnlocked  float64 // largest unlocked holder, pct of supply
	Holders            []LPHolder
}

// LockAnalyzer classifies LP-token holders through the chain reader,
// caching per LP mint.
type LockAnalyzer struct {
	rpc ChainReader

	mu    sync.Mutex
	cache map[string]cachedLock
}

type cachedLock struct {
	report    LockReport
	fetchedAt time.Time
}

// NewLockAnalyzer builds a lock analyzer over the given chain reader.
func NewLockAnalyzer(rpc ChainReader) *LockAnalyzer {
	return &LockAnalyzer{rpc: rpc, cache: make(map[string]cachedLock)}
}

// Analyze returns the lock report for an LP mint, from cache when fresh.
// RPC failure yields the fail-closed unavailable report.
func (a *LockAnalyzer) Analyze(ctx context.Context, lpMint string) LockReport {
	a.mu.Lock()
	if entry, ok := a.cache[lpMint]; ok && time.Since(entry.fetchedAt) < lockCacheTTL {
		a.mu.Unlock()
		return entry.report
	}
	a.mu.Unlock()

	report, err := a.analyze(ctx, lpMint)
	if err != nil {
		lockLogger.Warn().Err(err).Str("lpMint", lpMint).Msg("LP lock analysis failed, failing closed")
		return LockReport{Available: false, UnlockedPct: 100, MaxSingleUnlocked: 100}
	}

	a.mu.Lock()
	a.cache[lpMint] = cachedLock{report: report, fetchedAt: time.Now()}
	a.mu.Unlock()

	return report
}

type tokenAmountValue struct {
	Value struct {
		Amount string `json:"amount"`
	} `json:"value"`
}

type largestAccountsValue struct {
	Value []struct {
		Address string `json:"address"`
		Amount  string `json:"amount"`
	} `json:"value"`
}

type multipleAccountsValue struct {
	Value []*struct {
		Owner string `json:"owner"`
		Data  struct {
			Parsed struct {
				Info struct {
					Owner string `json:"owner"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"value"`
}

func (a *LockAnalyzer) analyze(ctx context.Context, lpMint string) (LockReport, error) {
	// Step 1: total supply.
	var supply tokenAmountValue
	if err := a.rpc.Call(ctx, "getTokenSupply", []any{lpMint}, &supply); err != nil {
		return LockReport{}, fmt.Errorf("%w: %w", ErrLockDataUnavailable, err)
	}
	totalSupply, err := strconv.ParseUint(supply.Value.Amount, 10, 64)
	if err != nil || totalSupply == 0 {
		return LockReport{}, fmt.Errorf("%w: invalid supply %q", ErrLockDataUnavailable, supply.Value.Amount)
	}

	// Step 2: largest holders.
	var largest largestAccountsValue
	if err := a.rpc.Call(ctx, "getTokenLargestAccounts",
		[]any{lpMint, map[string]string{"commitment": "confirmed"}}, &largest); err != nil {
		return LockReport{}, fmt.Errorf("%w: %w", ErrLockDataUnavailable, err)
	}
	if len(largest.Value) == 0 {
		return LockReport{}, fmt.Errorf("%w: no holder accounts", ErrLockDataUnavailable)
	}

	// Step 3: resolve each holder account's token authority.
	addresses := make([]string, 0, len(largest.Value))
	for _, h := range largest.Value {
		addresses = append(addresses, h.Address)
	}
	ownerMap, err := a.accountAuthorities(ctx, addresses)
	if err != nil {
		return LockReport{}, err
	}

	// Step 4: second-level lookup for authorities that may be locker PDAs.
	authoritySet := make(map[string]bool)
	for _, owner := range ownerMap {
		if owner == "" || owner == systemProgram || owner == raydiumLPAuthority {
			continue
		}
		if burnAddresses[owner] || lockerPrograms[owner] {
			continue
		}
		authoritySet[owner] = true
	}
	authorities := make([]string, 0, len(authoritySet))
	for addr := range authoritySet {
		authorities = append(authorities, addr)
	}
	authorityOwners, err := a.authorityOwners(ctx, authorities)
	if err != nil {
		return LockReport{}, err
	}

	// Step 5: classify.
	var burned, protocol, contract, unlocked, maxSingleUnlocked uint64
	report := LockReport{Available: true, TotalSupply: totalSupply}

	for _, holder := range largest.Value {
		amount, err := strconv.ParseUint(holder.Amount, 10, 64)
		if err != nil || amount == 0 {
			continue
		}
		owner := ownerMap[holder.Address]
		pct := float64(amount) / float64(totalSupply) * 100

		var category HolderCategory
		switch {
		case burnAddresses[holder.Address] || burnAddresses[owner]:
			category = HolderBurned
			burned += amount
		case owner == systemProgram:
			// Closed token account; the balance is unrecoverable.
			category = HolderBurned
			burned += amount
		case owner == raydiumLPAuthority:
			category = HolderProtocolLocked
			protocol += amount
		case lockerPrograms[owner] || lockerPrograms[authorityOwners[owner]]:
			category = HolderContractLocked
			contract += amount
		default:
			category = HolderUnlocked
			unlocked += amount
			if amount > maxSingleUnlocked {
				maxSingleUnlocked = amount
			}
		}

		report.Holders = append(report.Holders, LPHolder{
			Address:  holder.Address,
			Owner:    owner,
			Amount:   amount,
			Pct:      pct,
			Category: category,
		})
	}

	covered := burned + protocol + contract + unlocked
	if covered < totalSupply {
		unlocked += totalSupply - covered
	}

	total := float64(totalSupply)
	report.BurnedPct = float64(burned) / total * 100
	report.ProtocolLockedPct = float64(protocol) / total * 100
	report.ContractLockedPct = float64(contract) / total * 100
	report.UnlockedPct = float64(unlocked) / total * 100
	report.SafePct = report.BurnedPct + report.ProtocolLockedPct + report.ContractLockedPct
	report.MaxSingleUnlocked = float64(maxSingleUnlocked) / total * 100

	lockLogger.Debug().
		Str("lpMint", lpMint).
		Float64("safePct", report.SafePct).
		Float64("burnedPct", report.BurnedPct).
		Float64("maxSingleUnlocked", report.MaxSingleUnlocked).
		Msg("LP lock distribution analyzed")

	return report, nil
}

// accountAuthorities resolves the token authority (the wallet or PDA that
// controls the tokens) for each token account. Token accounts are always
// owned by the Token Program on-chain; the real authority is inside the
// parsed account data. A missing account means the holder was closed.
func (a *LockAnalyzer) accountAuthorities(ctx context.Context, addresses []string) (map[string]string, error) {
	if len(addresses) == 0 {
		return map[string]string{}, nil
	}
	var accounts multipleAccountsValue
	params := []any{addresses, map[string]string{"encoding": "jsonParsed", "commitment": "confirmed"}}
	if err := a.rpc.Call(ctx, "getMultipleAccounts", params, &accounts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockDataUnavailable, err)
	}

	ownerMap := make(map[string]string, len(addresses))
	for i, addr := range addresses {
		if i >= len(accounts.Value) || accounts.Value[i] == nil {
			ownerMap[addr] = systemProgram
			continue
		}
		acct := accounts.Value[i]
		if acct.Data.Parsed.Info.Owner != "" {
			ownerMap[addr] = acct.Data.Parsed.Info.Owner
		} else {
			ownerMap[addr] = acct.Owner
		}
	}
	return ownerMap, nil
}

// authorityOwners resolves which program owns each authority address.
// Regular wallets resolve to the System Program; locker PDAs resolve to
// their parent locker program.
func (a *LockAnalyzer) authorityOwners(ctx context.Context, authorities []string) (map[string]string, error) {
	if len(authorities) == 0 {
		return map[string]string{}, nil
	}
	var accounts multipleAccountsValue
	params := []any{authorities, map[string]string{"encoding": "base64", "commitment": "confirmed"}}
	if err := a.rpc.Call(ctx, "getMultipleAccounts", params, &accounts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockDataUnavailable, err)
	}

	ownerMap := make(map[string]string, len(authorities))
	for i, addr := range authorities {
		if i >= len(accounts.Value) || accounts.Value[i] == nil {
			ownerMap[addr] = systemProgram
			continue
		}
		ownerMap[addr] = accounts.Value[i].Owner
	}
	return ownerMap, nil
}
