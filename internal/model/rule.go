package model

// Rule maps transaction text to a category by keyword or pattern.
// Keywords are lowercase substrings; patterns are case-insensitive regular expressions.
type Rule struct {
	Name            string
	CategoryName    string
	TransactionType TransactionType
	Keywords        []string
	Patterns        []string
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	r.Keywords = append([]string(nil), r.Keywords...)
	r.Patterns = append([]string(nil), r.Patterns...)
	return r
}
