package label

import "strings"

// Rule pairs a category label with a predicate over the normalized statement
// text. Rules are tested in order and the first match wins; the order is part
// of the contract and is pinned by tests.
type Rule struct {
	Label string
	Match func(normalized string) bool
}

// Config controls the derivation pipeline. Immutable; one process-wide
// default instance is typical, but tests may inject their own.
type Config struct {
	// MaxWords bounds the merchant label length, 1 to 3 words.
	MaxWords int
	// Currencies are the codes recognized when stripping amounts, in order.
	Currencies []string
	// StopWords are uppercase tokens dropped from merchant labels.
	StopWords map[string]bool
	// Rules is the ordered category rule table.
	Rules []Rule
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// DefaultConfig returns the production rule set. Rule order is significant:
// reordering reclassifies ambiguous lines (a refunded fee, a reversed
// transfer) and must not happen silently.
func DefaultConfig() Config {
	return Config{
		MaxWords:   2,
		Currencies: []string{"AED", "USD", "EUR", "GBP", "SAR", "QAR", "KWD", "BHD", "OMR", "INR"},
		StopWords: map[string]bool{
			"POS":           true,
			"PURCHASE":      true,
			"PAYMENT":       true,
			"CARD":          true,
			"DEBIT":         true,
			"CREDIT":        true,
			"ONLINE":        true,
			"INTL":          true,
			"INTERNATIONAL": true,
			"TRN":           true,
			"VAT":           true,
			"LLC":           true,
			"LTD":           true,
			"WWW":           true,
			"COM":           true,
		},
		Rules: []Rule{
			{Label: "Salary payment", Match: func(s string) bool {
				return containsAny(s, "SALARY", "PAYROLL")
			}},
			{Label: "Bank transfer", Match: func(s string) bool {
				return containsAny(s, "TRANSFER", "WIRE", "IBAN")
			}},
			{Label: "ATM cash", Match: func(s string) bool {
				return containsAny(s, "ATM", "WITHDRAWAL")
			}},
			{Label: "Fees", Match: func(s string) bool {
				return containsAny(s, "FEE", "CHARGE")
			}},
			{Label: "Refund", Match: func(s string) bool {
				return containsAny(s, "REFUND", "REVERSAL")
			}},
			{Label: "Interest", Match: func(s string) bool {
				return strings.Contains(s, "INTEREST")
			}},
		},
	}
}
