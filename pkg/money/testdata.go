package money

import (
	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// TestDataGenerator generates realistic BWA amounts and labels using gofakeit.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator creates a new test data generator with a random seed.
func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{
		faker: gofakeit.New(0),
	}
}

// NewTestDataGeneratorWithSeed creates a generator with a specific seed for reproducibility.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{
		faker: gofakeit.New(seed),
	}
}

// ============================================================================
// Amount Generation
// ============================================================================

// RandomAmount returns a decimal with two fraction digits in [minCents, maxCents].
func (g *TestDataGenerator) RandomAmount(minCents, maxCents int64) decimal.Decimal {
	if minCents > maxCents {
		minCents, maxCents = maxCents, minCents
	}
	cents := g.faker.Int64() % (maxCents - minCents + 1)
	if cents < 0 {
		cents = -cents
	}
	return FromMinorUnits(minCents+cents, 2)
}

// SignedAmount returns a random amount up to +/- 10 million, negative about half the time.
func (g *TestDataGenerator) SignedAmount() decimal.Decimal {
	d := g.RandomAmount(0, 1_000_000_000)
	if g.faker.Bool() {
		return d.Neg()
	}
	return d
}

// MonthlyRevenue returns a plausible monthly revenue for a small business.
func (g *TestDataGenerator) MonthlyRevenue() decimal.Decimal {
	return g.RandomAmount(500_000, 5_000_000)
}

// MonthlyCost returns a plausible monthly cost line.
func (g *TestDataGenerator) MonthlyCost() decimal.Decimal {
	return g.RandomAmount(1_000, 1_500_000)
}

// ============================================================================
// Label Generation
// ============================================================================

var (
	revenueLabels = []string{
		"Umsatzerlöse", "Erlöse 19% USt", "Erlöse 7% USt", "Sonstige betriebliche Erträge",
		"Provisionserlöse", "Zinserträge",
	}
	expenseLabels = []string{
		"Personalkosten", "Raumkosten", "Versicherungskosten", "Kfz-Kosten", "Werbekosten",
		"Reisekosten", "Wareneinkauf Aufwand", "Abschreibungen", "Sonstige Kosten",
		"Betriebliche Steuern", "Reparatur/Instandhaltung Kosten",
	}
)

// RevenueLabel returns a typical revenue line label.
func (g *TestDataGenerator) RevenueLabel() string {
	return revenueLabels[g.faker.IntRange(0, len(revenueLabels)-1)]
}

// ExpenseLabel returns a typical expense line label.
func (g *TestDataGenerator) ExpenseLabel() string {
	return expenseLabels[g.faker.IntRange(0, len(expenseLabels)-1)]
}

// ExpenseLabels returns n distinct expense labels (at most the known set).
func (g *TestDataGenerator) ExpenseLabels(n int) []string {
	labels := make([]string, len(expenseLabels))
	copy(labels, expenseLabels)
	g.faker.ShuffleStrings(labels)
	if n > len(labels) {
		n = len(labels)
	}
	return labels[:n]
}
