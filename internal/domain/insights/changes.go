package insights

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
)

// ChangeSentiment indicates whether a change is good or bad for the result
type ChangeSentiment string

const (
	SentimentPositive ChangeSentiment = "positive"
	SentimentNegative ChangeSentiment = "negative"
	SentimentNeutral  ChangeSentiment = "neutral"
)

// CategoryChange compares one category between a month and the month before.
type CategoryChange struct {
	Category       string             `json:"category"`
	Classification bwa.Classification `json:"classification"`
	Previous       decimal.Decimal    `json:"previous"`
	Current        decimal.Decimal    `json:"current"`
	Delta          decimal.Decimal    `json:"delta"`
	// PercentChange is nil when the category was absent the month before.
	PercentChange *float64        `json:"percent_change,omitempty"`
	Sentiment     ChangeSentiment `json:"sentiment"`
}

// MonthComparison holds the changes between two consecutive months.
type MonthComparison struct {
	Current  bwa.MonthKey     `json:"current"`
	Previous bwa.MonthKey     `json:"previous"`
	Changes  []CategoryChange `json:"changes"`
}

// CategoryChanges lists categories whose amount moved by at least
// minPercent between the previous month and (year, month), largest absolute
// change first. Categories new in the month are always listed.
func (s *Service) CategoryChanges(ctx context.Context, year, month int, minPercent float64) (*MonthComparison, error) {
	if !bwa.ValidMonth(month) {
		return nil, fmt.Errorf("invalid month %d", month)
	}

	current := bwa.MonthKey{Year: year, Month: month}
	previous := bwa.MonthKey{Year: year, Month: month - 1}
	if month == 1 {
		previous = bwa.MonthKey{Year: year - 1, Month: 12}
	}

	rows, err := s.repo.TrendRows(ctx, &year, nil)
	if err != nil {
		return nil, err
	}
	if previous.Year != year {
		prevRows, err := s.repo.TrendRows(ctx, &previous.Year, nil)
		if err != nil {
			return nil, err
		}
		rows = append(rows, prevRows...)
	}

	trends := buildTrends(rows)
	comparison := &MonthComparison{Current: current, Previous: previous, Changes: []CategoryChange{}}

	for _, series := range trends.Series {
		var prev, cur decimal.Decimal
		var seen bool
		for _, p := range series.Points {
			switch (bwa.MonthKey{Year: p.Year, Month: p.Month}) {
			case previous:
				prev = p.Amount
			case current:
				cur = p.Amount
				seen = true
			}
		}
		if !seen {
			continue
		}

		change := CategoryChange{
			Category:       series.Category,
			Classification: series.Classification,
			Previous:       prev,
			Current:        cur,
			Delta:          cur.Abs().Sub(prev.Abs()),
		}
		if change.Delta.IsZero() {
			continue
		}
		if !prev.IsZero() {
			pct, _ := change.Delta.Div(prev.Abs()).Mul(decimal.NewFromInt(100)).Round(1).Float64()
			if pct < minPercent && -pct < minPercent {
				continue
			}
			change.PercentChange = &pct
		}
		change.Sentiment = sentimentFor(series.Classification, change.Delta)
		comparison.Changes = append(comparison.Changes, change)
	}

	sort.SliceStable(comparison.Changes, func(i, j int) bool {
		return comparison.Changes[i].Delta.Abs().GreaterThan(comparison.Changes[j].Delta.Abs())
	})
	return comparison, nil
}

func sentimentFor(class bwa.Classification, delta decimal.Decimal) ChangeSentiment {
	switch {
	case class == bwa.Revenue && delta.IsPositive(), class == bwa.Expense && delta.IsNegative():
		return SentimentPositive
	case class == bwa.Revenue || class == bwa.Expense:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}
