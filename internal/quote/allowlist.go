package quote

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	allowlistSplitRe = regexp.MustCompile(`[,;\s]+`)
	poolAddressRe    = regexp.MustCompile(`^0x[a-f0-9]{40}$`)
)

// Allowlist holds the operator-pinned canonical pool addresses. Entries are
// either a bare 0x address (any chain) or CHAIN_ID:0xaddress.
type Allowlist struct {
	global   map[string]struct{}
	perChain map[string]struct{}
}

// ParseAllowlist parses the CANONICAL_POOL_ALLOWLIST value. Separators are
// commas, semicolons or whitespace; addresses are matched case-insensitively.
func ParseAllowlist(raw string) Allowlist {
	list := Allowlist{
		global:   map[string]struct{}{},
		perChain: map[string]struct{}{},
	}
	for _, part := range allowlistSplitRe.Split(strings.TrimSpace(raw), -1) {
		entry := strings.ToLower(strings.TrimSpace(part))
		if entry == "" {
			continue
		}
		if chain, addr, ok := strings.Cut(entry, ":"); ok {
			chainID, err := strconv.ParseInt(strings.TrimSpace(chain), 10, 64)
			addr = strings.TrimSpace(addr)
			if err != nil || chainID <= 0 || !poolAddressRe.MatchString(addr) {
				continue
			}
			list.perChain[strconv.FormatInt(chainID, 10)+":"+addr] = struct{}{}
			continue
		}
		if poolAddressRe.MatchString(entry) {
			list.global[entry] = struct{}{}
		}
	}
	return list
}

// Empty reports whether the allowlist has no entries.
func (a Allowlist) Empty() bool {
	return len(a.global) == 0 && len(a.perChain) == 0
}

// Contains reports whether the pool address is pinned canonical, either
// globally or for the given chain.
func (a Allowlist) Contains(chainID int64, address string) bool {
	addr := strings.ToLower(strings.TrimSpace(address))
	if addr == "" {
		return false
	}
	if _, ok := a.global[addr]; ok {
		return true
	}
	_, ok := a.perChain[strconv.FormatInt(chainID, 10)+":"+addr]
	return ok
}
