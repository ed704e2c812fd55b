// Package report computes aggregate views over stored transactions.
package report

import (
	"math"
	"sort"

	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/normalize"
)

// TopCategoryCount is how many expense categories a summary lists.
const TopCategoryCount = 5

// CategoryShare is one category's part of total expenses.
type CategoryShare struct {
	Category   string  `json:"category"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// Summary is the income/expense overview of a set of transactions.
type Summary struct {
	TotalIncome   float64         `json:"totalIncome"`
	TotalExpenses float64         `json:"totalExpenses"`
	Balance       float64         `json:"balance"`
	SavingsRate   float64         `json:"savingsRate"`
	TopCategories []CategoryShare `json:"topCategories"`
	Count         int             `json:"count"`
}

// Summarize aggregates txs. Positive amounts are income, negative amounts are
// expenses; expenses are reported as a positive total. Transactions without a
// category are grouped under the normalizer's fallback category.
func Summarize(txs []domain.Transaction) Summary {
	s := Summary{
		TopCategories: []CategoryShare{},
		Count:         len(txs),
	}

	byCategory := make(map[string]float64)
	for _, tx := range txs {
		switch {
		case tx.Amount > 0:
			s.TotalIncome += tx.Amount
		case tx.Amount < 0:
			expense := -tx.Amount
			s.TotalExpenses += expense

			category := tx.Category
			if category == "" {
				category = normalize.FallbackCategory
			}
			byCategory[category] += expense
		}
	}

	s.TotalIncome = round2(s.TotalIncome)
	s.TotalExpenses = round2(s.TotalExpenses)
	s.Balance = round2(s.TotalIncome - s.TotalExpenses)
	if s.TotalIncome > 0 {
		s.SavingsRate = round2(s.Balance / s.TotalIncome * 100)
	}

	for category, amount := range byCategory {
		share := CategoryShare{Category: category, Amount: round2(amount)}
		if s.TotalExpenses > 0 {
			share.Percentage = round2(amount / s.TotalExpenses * 100)
		}
		s.TopCategories = append(s.TopCategories, share)
	}
	sort.Slice(s.TopCategories, func(i, j int) bool {
		if s.TopCategories[i].Amount == s.TopCategories[j].Amount {
			return s.TopCategories[i].Category < s.TopCategories[j].Category
		}
		return s.TopCategories[i].Amount > s.TopCategories[j].Amount
	})
	if len(s.TopCategories) > TopCategoryCount {
		s.TopCategories = s.TopCategories[:TopCategoryCount]
	}

	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
