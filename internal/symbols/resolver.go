// Package symbols maps currency codes to candidate trading-pair symbols and
// formats symbols for display.
//
// The mapping is a static priority table: the first candidate for a currency
// is tried first, later candidates only after every fetch tier has failed for
// the earlier ones. Unknown currencies resolve to a default pair instead of
// erroring, so a bad currency code can never hard-fail a chart request.
package symbols

import (
	"sort"
	"strings"
)

// DefaultPair is returned for currencies absent from the table.
const DefaultPair = "EURUSD=X"

// pairTable maps a currency code to its ordered candidate pairs.
var pairTable = map[string][]string{
	"EUR": {"EURUSD=X", "EURGBP=X"},
	"USD": {"EURUSD=X", "USDJPY=X"},
	"GBP": {"GBPUSD=X", "EURGBP=X"},
	"JPY": {"USDJPY=X", "EURJPY=X"},
	"CHF": {"USDCHF=X"},
	"CAD": {"USDCAD=X"},
	"AUD": {"AUDUSD=X"},
	"NZD": {"NZDUSD=X"},
	"CNY": {"USDCNY=X"},
	"SEK": {"USDSEK=X"},
	"NOK": {"USDNOK=X"},
	"MXN": {"USDMXN=X"},
	"ZAR": {"USDZAR=X"},
	"TRY": {"USDTRY=X"},
	"SGD": {"USDSGD=X"},
	"HKD": {"USDHKD=X"},
	"PLN": {"USDPLN=X"},
	"INR": {"USDINR=X"},
	"XAU": {"XAUUSD=X", "GC=F"},
	"BTC": {"BTC-USD"},
}

// alternateTable maps a primary symbol to alternate spellings of the same
// economic pair, used only by the alternate-source fetch tier.
var alternateTable = map[string][]string{
	"EURUSD=X": {"EUR=X"},
	"GBPUSD=X": {"GBP=X"},
	"USDJPY=X": {"JPY=X"},
	"USDCHF=X": {"CHF=X"},
	"USDCAD=X": {"CAD=X"},
	"AUDUSD=X": {"AUD=X"},
}

// PairsFor returns the ordered candidate pairs for a currency code.
// Unknown currencies resolve to a single-element list holding DefaultPair.
func PairsFor(currency string) []string {
	if pairs, ok := pairTable[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		out := make([]string, len(pairs))
		copy(out, pairs)
		return out
	}
	return []string{DefaultPair}
}

// PrimaryPair returns the highest-priority pair for a currency code.
func PrimaryPair(currency string) string {
	return PairsFor(currency)[0]
}

// AlternatePairs returns alternate spellings for a symbol, or nil when none
// are known.
func AlternatePairs(symbol string) []string {
	alts, ok := alternateTable[symbol]
	if !ok {
		return nil
	}
	out := make([]string, len(alts))
	copy(out, alts)
	return out
}

// IsKnownCurrency reports whether the currency has an entry in the table.
func IsKnownCurrency(currency string) bool {
	_, ok := pairTable[strings.ToUpper(strings.TrimSpace(currency))]
	return ok
}

// Currencies returns every currency code present in the table, sorted.
func Currencies() []string {
	out := make([]string, 0, len(pairTable))
	for c := range pairTable {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// PrettyName formats a symbol as "BASE/QUOTE" for display.
//
// Three symbol shapes are handled: dash-separated ("BTC-USD"), six letters
// plus a vendor suffix ("EURUSD=X"), and an unrecognized fallback that simply
// strips the suffix.
func PrettyName(symbol string) string {
	if base, quote, ok := strings.Cut(symbol, "-"); ok && base != "" && quote != "" {
		return base + "/" + quote
	}

	trimmed := symbol
	if i := strings.IndexByte(trimmed, '='); i >= 0 {
		trimmed = trimmed[:i]
	}
	if len(trimmed) == 6 {
		return trimmed[:3] + "/" + trimmed[3:]
	}
	return trimmed
}
