package categorization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
)

var (
	ErrEmptyKeyword       = errors.New("keyword must not be empty")
	ErrRuleClassification = errors.New("rules may only assign revenue, expense, or summary")
	// ErrRuleShadowed means a built-in keyword already matches every label
	// the new keyword would match, so the rule could never apply.
	ErrRuleShadowed = errors.New("keyword is already covered by a built-in rule")
)

// Service classifies labels with the built-in table followed by the stored
// custom rules. Custom rules rank after every built-in rule, so they only
// decide labels that would otherwise be classified as other.
type Service struct {
	repo    RuleRepository
	builtin *Engine
	engine  atomic.Pointer[Engine]
	logger  *slog.Logger
}

// NewService creates a service that classifies with the built-in rules until
// Reload is called.
func NewService(repo RuleRepository, logger *slog.Logger) *Service {
	s := &Service{
		repo:    repo,
		builtin: NewDefaultEngine(),
		logger:  logger,
	}
	s.engine.Store(s.builtin)
	return s
}

// Classify uses the current rule set. Safe for concurrent use with Reload.
func (s *Service) Classify(label string) bwa.Classification {
	return s.engine.Load().Classify(label)
}

// Explain returns the rule that decides label, if any.
func (s *Service) Explain(label string) (Rule, bool) {
	return s.engine.Load().Match(label)
}

// Reload rebuilds the engine from the stored rules. On error the previous
// rule set stays active.
func (s *Service) Reload(ctx context.Context) error {
	custom, err := s.repo.ListRules(ctx)
	if err != nil {
		return err
	}

	rules := DefaultRules()
	for _, c := range custom {
		rules = append(rules, Rule{Keyword: c.Keyword, Classification: c.Classification})
	}
	s.engine.Store(NewEngine(rules))

	s.logger.Info("classification rules loaded", slog.Int("custom", len(custom)))
	return nil
}

// ListRules returns the stored custom rules.
func (s *Service) ListRules(ctx context.Context) ([]CustomRule, error) {
	return s.repo.ListRules(ctx)
}

// CreateRule stores a custom rule and activates it for future imports.
// Stored line items keep their classification; a period must be deleted
// and imported again to pick up the rule.
func (s *Service) CreateRule(ctx context.Context, keyword string, class bwa.Classification) (*CustomRule, error) {
	kw := normalizeLabel(keyword)
	if kw == "" {
		return nil, ErrEmptyKeyword
	}
	switch class {
	case bwa.Revenue, bwa.Expense, bwa.Summary:
	default:
		return nil, fmt.Errorf("%w: %q", ErrRuleClassification, class)
	}
	if r, ok := s.builtin.Match(kw); ok {
		return nil, fmt.Errorf("%w: %q (%s)", ErrRuleShadowed, r.Keyword, r.Classification)
	}

	rule := &CustomRule{Keyword: kw, Classification: class}
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, err
	}

	if err := s.Reload(ctx); err != nil {
		s.logger.Error("failed to reload classification rules", "error", err)
	}

	s.logger.Info("classification rule created",
		slog.String("keyword", kw),
		slog.String("classification", string(class)),
	)
	return rule, nil
}

// DeleteRule removes a custom rule and deactivates it.
func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		return err
	}
	if err := s.Reload(ctx); err != nil {
		s.logger.Error("failed to reload classification rules", "error", err)
	}
	return nil
}
