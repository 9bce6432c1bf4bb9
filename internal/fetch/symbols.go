package fetch

import (
	"os"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/portfolio-cli/internal/model"
)

// SymbolTable maps companies to the identifiers market-data providers key on:
// CoinGecko coin IDs for tokens and exchange tickers for public equities.
// Lookups fall back from explicit company fields to normalized-name matching.
type SymbolTable struct {
	// token symbol (upper case) -> coingecko coin id
	tokens map[string]string
	// normalized company name -> coingecko coin id
	tokenNames map[string]string
	// normalized company name -> equity ticker
	equities map[string]string
}

// Well-known mappings so a fresh install resolves the common cases without a
// symbols file.
var (
	defaultTokens = map[string]string{
		"BTC":   "bitcoin",
		"ETH":   "ethereum",
		"SOL":   "solana",
		"LINK":  "chainlink",
		"UNI":   "uniswap",
		"AAVE":  "aave",
		"MATIC": "matic-network",
		"DOT":   "polkadot",
		"AVAX":  "avalanche-2",
		"OP":    "optimism",
		"ARB":   "arbitrum",
	}
	defaultTokenNames = map[string]string{
		"bitcoin":   "bitcoin",
		"ethereum":  "ethereum",
		"solana":    "solana",
		"chainlink": "chainlink",
		"uniswap":   "uniswap",
		"aave":      "aave",
		"polygon":   "matic-network",
		"polkadot":  "polkadot",
		"avalanche": "avalanche-2",
		"optimism":  "optimism",
		"arbitrum":  "arbitrum",
	}
	defaultEquities = map[string]string{
		"coinbase":       "COIN",
		"microstrategy":  "MSTR",
		"strategy":       "MSTR",
		"robinhood":      "HOOD",
		"block":          "XYZ",
		"nvidia":         "NVDA",
		"palantir":       "PLTR",
		"shopify":        "SHOP",
		"galaxy digital": "GLXY",
		"circle":         "CRCL",
	}
)

// NewSymbolTable returns a table holding only the built-in mappings.
func NewSymbolTable() *SymbolTable {
	t := &SymbolTable{
		tokens:     make(map[string]string, len(defaultTokens)),
		tokenNames: make(map[string]string, len(defaultTokenNames)),
		equities:   make(map[string]string, len(defaultEquities)),
	}
	for k, v := range defaultTokens {
		t.tokens[k] = v
	}
	for k, v := range defaultTokenNames {
		t.tokenNames[k] = v
	}
	for k, v := range defaultEquities {
		t.equities[k] = v
	}
	return t
}

// symbolFile is the YAML overlay format for portfolio-specific mappings.
type symbolFile struct {
	Tokens   map[string]string `yaml:"tokens"`   // token symbol -> coingecko id
	Equities map[string]string `yaml:"equities"` // company name -> ticker
}

// LoadSymbolTable merges a YAML symbols file over the built-in mappings.
func LoadSymbolTable(path string) (*SymbolTable, error) {
	t := NewSymbolTable()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: read symbols file %s", path)
	}
	var f symbolFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrapf(err, "fetch: parse symbols file %s", path)
	}

	for sym, id := range f.Tokens {
		t.tokens[strings.ToUpper(sym)] = id
	}
	for name, ticker := range f.Equities {
		t.equities[NormalizeName(name)] = strings.ToUpper(ticker)
	}
	return t, nil
}

// ResolveCoinID returns the CoinGecko coin ID for a company, preferring the
// explicit token symbol over a name match.
func (t *SymbolTable) ResolveCoinID(c model.Company) (string, bool) {
	if c.TokenSymbol != "" {
		if id, ok := t.tokens[strings.ToUpper(c.TokenSymbol)]; ok {
			return id, true
		}
		// An unmapped symbol is still usable: coingecko ids are lower case.
		return strings.ToLower(c.TokenSymbol), true
	}
	id, ok := t.tokenNames[NormalizeName(c.Name)]
	return id, ok
}

// ResolveTicker returns the equity ticker for a company, preferring the
// explicit ticker field over a name match.
func (t *SymbolTable) ResolveTicker(c model.Company) (string, bool) {
	if c.Ticker != "" {
		return strings.ToUpper(c.Ticker), true
	}
	ticker, ok := t.equities[NormalizeName(c.Name)]
	return ticker, ok
}

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var corporateSuffixes = map[string]bool{
	"inc":          true,
	"incorporated": true,
	"corp":         true,
	"corporation":  true,
	"co":           true,
	"company":      true,
	"ltd":          true,
	"limited":      true,
	"llc":          true,
	"plc":          true,
	"gmbh":         true,
	"labs":         true,
	"foundation":   true,
	"holdings":     true,
}

// NormalizeName folds a company name to a canonical lookup key: accents
// stripped, lower case, punctuation collapsed, trailing corporate suffixes
// removed.
func NormalizeName(name string) string {
	folded, _, err := transform.String(accentFolder, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for len(words) > 1 && corporateSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}
