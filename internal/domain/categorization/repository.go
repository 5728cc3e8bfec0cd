package categorization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/pkg/db"
)

const ruleKeywordConstraint = "bwa_classification_rules_keyword_key"

var (
	ErrRuleExists   = errors.New("classification rule already exists")
	ErrRuleNotFound = errors.New("classification rule not found")
)

// CustomRule is an operator-defined keyword stored in the database.
type CustomRule struct {
	ID             uuid.UUID          `json:"id"`
	Keyword        string             `json:"keyword"`
	Classification bwa.Classification `json:"classification"`
	CreatedAt      time.Time          `json:"created_at"`
}

// RuleRepository persists custom classification rules.
type RuleRepository interface {
	ListRules(ctx context.Context) ([]CustomRule, error)
	CreateRule(ctx context.Context, rule *CustomRule) error
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

// Repository handles database operations for categorization
type Repository struct {
	db db.DBTX
}

// NewRepository creates a new categorization repository
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// ListRules returns the custom rules oldest first, which is their precedence.
func (r *Repository) ListRules(ctx context.Context) ([]CustomRule, error) {
	query := `
		SELECT id, keyword, classification, created_at
		FROM bwa_classification_rules
		ORDER BY created_at, keyword
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list classification rules: %w", err)
	}
	defer rows.Close()

	rules := []CustomRule{}
	for rows.Next() {
		var rule CustomRule
		var class string
		if err := rows.Scan(&rule.ID, &rule.Keyword, &class, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan classification rule: %w", err)
		}
		rule.Classification = bwa.Classification(class)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// CreateRule inserts rule, assigning its ID and creation time.
func (r *Repository) CreateRule(ctx context.Context, rule *CustomRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	query := `
		INSERT INTO bwa_classification_rules (id, keyword, classification)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query, rule.ID, rule.Keyword, string(rule.Classification)).Scan(&rule.CreatedAt)
	if db.IsUniqueViolation(err, ruleKeywordConstraint) {
		return fmt.Errorf("%w: %q", ErrRuleExists, rule.Keyword)
	}
	if err != nil {
		return fmt.Errorf("failed to create classification rule: %w", err)
	}
	return nil
}

// DeleteRule removes a rule. Line items imported under it keep their class.
func (r *Repository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM bwa_classification_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete classification rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}
