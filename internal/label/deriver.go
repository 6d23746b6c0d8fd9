// Package label derives clean merchant and category labels from raw bank
// statement lines. Derivation is pure and total: same input and config always
// yield the same label, no I/O happens, and the worst case is the sentinel
// "Unknown".
package label

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownLabel is returned when nothing usable survives the pipeline.
const UnknownLabel = "Unknown"

type labelKind int

const (
	kindMerchant labelKind = iota
	kindCategory
	kindLocation
	kindUnknown
)

var (
	exoticQuotes = strings.NewReplacer(
		"‘", "'", "’", "'", "“", `"`, "”", `"`,
		"´", "'", "`", "'",
	)
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Statement boilerplate: masked card numbers, reference/authorization/
	// trace/transaction id fragments, dates, times.
	maskedCardRe = regexp.MustCompile(`\b[0-9]{0,6}[X*]{2,}[0-9]{0,6}\b`)
	cardPhraseRe = regexp.MustCompile(`\bCARD\b\s*(?:NO|NUMBER|#)?\.?\s*`)
	refIDRe      = regexp.MustCompile(`\b(?:REF|REFERENCE|AUTH|AUTHORIZATION|TRACE|TXN|TRANSACTION)\s*(?:NO|ID|CODE)?\.?\s*:?\s*[A-Z0-9-]*[0-9][A-Z0-9-]*\b`)
	dateRe       = regexp.MustCompile(`\b\d{1,4}[/.-]\d{1,2}[/.-]\d{1,4}\b`)
	timeRe       = regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2})?\b`)
	bareNumberRe = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\b`)

	// Letters and spaces only, Latin and Arabic scripts preserved.
	nonLetterRe = regexp.MustCompile(`[^A-Za-z\p{Arabic} ]+`)

	latinTokenRe = regexp.MustCompile(`[A-Za-z]+`)
	anyTokenRe   = regexp.MustCompile(`\p{L}+`)
)

// Country-code noise left behind by card processors.
var countryCodes = map[string]bool{
	"AE": true, "ARE": true, "US": true, "USA": true,
	"GB": true, "GBR": true, "UK": true, "SA": true, "SAU": true,
}

// Derive maps a raw statement description to a short label. Category and
// location labels come back in display form; merchant labels keep the
// statement's uppercase tokens (see ImproveMerchantName for display casing).
func Derive(raw string, cfg Config) string {
	label, _ := derive(raw, cfg)
	return label
}

// ImproveMerchantName derives a display-ready merchant name: the pipeline
// output with title casing applied to merchant-style labels only. Category
// and location labels already carry their display form.
func ImproveMerchantName(raw string, cfg Config) string {
	label, kind := derive(raw, cfg)
	if kind == kindMerchant {
		return titleCase(label)
	}
	return label
}

// ImproveTransactionDescription returns the display merchant label together
// with a cleaned free-text description: boilerplate-stripped but not
// tokenized or truncated.
func ImproveTransactionDescription(raw string, cfg Config) (merchant, cleaned string) {
	merchant = ImproveMerchantName(raw, cfg)

	normalized := normalize(raw)
	cleaned = strings.TrimSpace(stripBoilerplate(normalized, cfg))
	if cleaned == "" {
		cleaned = strings.TrimSpace(normalized)
	}
	return merchant, cleaned
}

// derive runs the ordered pipeline: normalize, category rules, location
// heuristic, boilerplate stripping, tokenization, filtering, truncation.
// First match wins at every stage.
func derive(raw string, cfg Config) (string, labelKind) {
	if cfg.MaxWords < 1 || cfg.MaxWords > 3 {
		cfg.MaxWords = 2
	}

	normalized := normalize(raw)
	if normalized == "" {
		return UnknownLabel, kindUnknown
	}

	for _, rule := range cfg.Rules {
		if rule.Match(normalized) {
			return rule.Label, kindCategory
		}
	}

	if loc, ok := detectLocation(normalized); ok {
		return loc, kindLocation
	}

	stripped := stripBoilerplate(normalized, cfg)

	tokens := latinTokenRe.FindAllString(stripped, -1)
	if len(tokens) == 0 {
		// Non-Latin statements still deserve a label.
		tokens = anyTokenRe.FindAllString(stripped, -1)
	}

	kept := tokens[:0]
	for _, tok := range tokens {
		if len([]rune(tok)) < 2 {
			continue
		}
		if cfg.StopWords[strings.ToUpper(tok)] {
			continue
		}
		kept = append(kept, tok)
	}

	if len(kept) == 0 {
		return UnknownLabel, kindUnknown
	}

	if len(kept) > cfg.MaxWords {
		kept = kept[:cfg.MaxWords]
	}
	return strings.Join(kept, " "), kindMerchant
}

// normalize uppercases, replaces exotic quote characters and collapses
// whitespace.
func normalize(raw string) string {
	s := exoticQuotes.Replace(raw)
	s = strings.ToUpper(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// detectLocation applies the city/country heuristic to lines no category
// rule claimed.
func detectLocation(s string) (string, bool) {
	hasUAE := strings.Contains(s, "UAE")
	switch {
	case strings.Contains(s, "DUBAI") && hasUAE:
		return "Dubai UAE", true
	case strings.Contains(s, "ABU") && strings.Contains(s, "DHABI"):
		return "Abu Dhabi", true
	case hasUAE:
		return "UAE", true
	}
	return "", false
}

// stripBoilerplate removes statement noise unrelated to merchant identity.
func stripBoilerplate(s string, cfg Config) string {
	s = maskedCardRe.ReplaceAllString(s, " ")
	s = cardPhraseRe.ReplaceAllString(s, " ")
	s = refIDRe.ReplaceAllString(s, " ")
	s = dateRe.ReplaceAllString(s, " ")
	s = timeRe.ReplaceAllString(s, " ")
	s = stripAmounts(s, cfg.Currencies)
	s = bareNumberRe.ReplaceAllString(s, " ")
	s = nonLetterRe.ReplaceAllString(s, " ")
	s = stripCountryCodes(s)
	return whitespaceRe.ReplaceAllString(s, " ")
}

// amountPatterns are the compiled amount-stripping regexes for one currency
// set, compiled once per distinct set.
type amountPatterns struct {
	amount  *regexp.Regexp
	reverse *regexp.Regexp
}

var amountPatternCache sync.Map

// amountPatternsFor builds the amount regexes for a currency set. Codes are
// quoted so regex metacharacters match literally, and word boundaries are
// asserted only next to word characters: \b never matches beside a symbol,
// so a code like "US$" needs its boundary on the letter side only.
func amountPatternsFor(currencies []string) *amountPatterns {
	key := strings.Join(currencies, "\x00")
	if cached, ok := amountPatternCache.Load(key); ok {
		return cached.(*amountPatterns)
	}

	var after, before []string
	for _, code := range currencies {
		if code == "" {
			continue
		}
		q := regexp.QuoteMeta(code)
		runes := []rune(code)
		if isWordRune(runes[len(runes)-1]) {
			after = append(after, q+`\b`)
		} else {
			after = append(after, q)
		}
		if isWordRune(runes[0]) {
			before = append(before, `\b`+q)
		} else {
			before = append(before, q)
		}
	}

	patterns := &amountPatterns{
		amount:  regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s*(?:` + strings.Join(after, "|") + `)`),
		reverse: regexp.MustCompile(`(?:` + strings.Join(before, "|") + `)\s*\d+(?:[.,]\d+)?\b`),
	}
	cached, _ := amountPatternCache.LoadOrStore(key, patterns)
	return cached.(*amountPatterns)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// stripAmounts removes numeric amounts paired with a configured currency
// code, in either order.
func stripAmounts(s string, currencies []string) string {
	if len(currencies) == 0 {
		return s
	}
	patterns := amountPatternsFor(currencies)
	s = patterns.amount.ReplaceAllString(s, " ")
	return patterns.reverse.ReplaceAllString(s, " ")
}

func stripCountryCodes(s string) string {
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if countryCodes[f] {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

var titleCaser = cases.Title(language.English)

// titleCase formats uppercase merchant tokens for display. Tokens of two
// letters or fewer stay uppercase so codes like "BP" or "AX" survive.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		if len(word) > 2 {
			words[i] = titleCaser.String(strings.ToLower(word))
		} else {
			words[i] = strings.ToUpper(word)
		}
	}
	return strings.Join(words, " ")
}
