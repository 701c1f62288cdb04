package rules

import "github.com/Veraticus/finhelper/internal/model"

// DefaultRules returns the built-in rule set written out when no rules file exists.
// Order matters: earlier rules win.
func DefaultRules() []model.Rule {
	return []model.Rule{
		{
			Name:         "food_and_dining",
			Keywords:     []string{"grab", "gojek", "mcdonald", "kfc", "starbucks", "restoran", "warung", "bakso", "nasi", "ayam"},
			Patterns:     []string{"grab.*food", "go.*food", ".*restaurant.*", ".*cafe.*"},
			CategoryName: "Food & Dining",
		},
		{
			Name:         "transportation",
			Keywords:     []string{"grab.*car", "grab.*bike", "gojek.*ride", "uber", "taxi", "ojek", "angkot", "transjakarta", "mrt", "krl"},
			Patterns:     []string{"grab.*ride", "go.*ride", ".*transport.*", ".*taxi.*"},
			CategoryName: "Transportation",
		},
		{
			Name:         "shopping",
			Keywords:     []string{"tokopedia", "shopee", "lazada", "blibli", "amazon", "mall", "supermarket", "indomaret", "alfamart"},
			Patterns:     []string{".*shop.*", ".*market.*", ".*store.*"},
			CategoryName: "Shopping",
		},
		{
			Name:         "utilities",
			Keywords:     []string{"pln", "listrik", "air", "pdam", "internet", "wifi", "telkom", "indihome", "gas", "pgas"},
			Patterns:     []string{".*electric.*", ".*water.*", ".*internet.*", ".*gas.*"},
			CategoryName: "Utilities",
		},
		{
			Name:         "healthcare",
			Keywords:     []string{"hospital", "rumah sakit", "dokter", "apotik", "farmasi", "obat", "medical", "klinik"},
			Patterns:     []string{".*hospital.*", ".*medical.*", ".*pharmacy.*"},
			CategoryName: "Healthcare",
		},
		{
			Name:         "entertainment",
			Keywords:     []string{"netflix", "spotify", "cinema", "bioskop", "game", "steam", "playstation", "xbox"},
			Patterns:     []string{".*entertainment.*", ".*movie.*", ".*music.*", ".*game.*"},
			CategoryName: "Entertainment",
		},
		{
			Name:         "education",
			Keywords:     []string{"sekolah", "universitas", "kursus", "course", "training", "seminar", "buku", "book"},
			Patterns:     []string{".*school.*", ".*university.*", ".*course.*", ".*training.*"},
			CategoryName: "Education",
		},
		{
			Name:            "income_salary",
			Keywords:        []string{"gaji", "salary", "bonus", "tunjangan", "allowance", "payroll"},
			Patterns:        []string{".*salary.*", ".*payroll.*", ".*income.*"},
			CategoryName:    "Salary",
			TransactionType: model.TransactionTypeIncome,
		},
		{
			Name:            "income_investment",
			Keywords:        []string{"dividend", "dividen", "bunga", "interest", "profit", "keuntungan", "return"},
			Patterns:        []string{".*dividend.*", ".*interest.*", ".*return.*"},
			CategoryName:    "Investment Return",
			TransactionType: model.TransactionTypeIncome,
		},
	}
}
