package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/internal/domain/categorization"
)

// fakeRepo keeps rules in memory so the real service logic runs.
type fakeRepo struct {
	rules []categorization.CustomRule
}

func (f *fakeRepo) ListRules(context.Context) ([]categorization.CustomRule, error) {
	return append([]categorization.CustomRule{}, f.rules...), nil
}

func (f *fakeRepo) CreateRule(_ context.Context, rule *categorization.CustomRule) error {
	for _, r := range f.rules {
		if r.Keyword == rule.Keyword {
			return categorization.ErrRuleExists
		}
	}
	rule.ID, rule.CreatedAt = uuid.New(), time.Now()
	f.rules = append(f.rules, *rule)
	return nil
}

func (f *fakeRepo) DeleteRule(_ context.Context, id uuid.UUID) error {
	for i, r := range f.rules {
		if r.ID == id {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return categorization.ErrRuleNotFound
}

func newServer(t *testing.T) (*http.ServeMux, *fakeRepo) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := &fakeRepo{}
	mux := http.NewServeMux()
	NewRulesHandler(categorization.NewService(repo, logger), logger).Register(mux)
	return mux, repo
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, bytes.NewBufferString(body)))
	return rec
}

func TestCreateAndClassify(t *testing.T) {
	mux, repo := newServer(t)

	rec := do(mux, http.MethodGet, "/api/classify?label=Versicherungen/Beitr%C3%A4ge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"classification":"other"`)

	rec = do(mux, http.MethodPost, "/api/classification-rules",
		`{"keyword":"Versicherung","classification":"Ausgaben"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Rule categorization.CustomRule `json:"rule"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "versicherung", body.Rule.Keyword)
	assert.Equal(t, bwa.Expense, body.Rule.Classification)
	assert.Len(t, repo.rules, 1)

	rec = do(mux, http.MethodGet, "/api/classify?label=Versicherungen/Beitr%C3%A4ge", "")
	assert.Contains(t, rec.Body.String(), `"classification":"expense"`)
	assert.Contains(t, rec.Body.String(), `"keyword":"versicherung"`)
}

func TestCreate_Rejections(t *testing.T) {
	mux, _ := newServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"keyword":`, http.StatusBadRequest},
		{"unknown type", `{"keyword":"x","classification":"assets"}`, http.StatusBadRequest},
		{"empty keyword", `{"keyword":" ","classification":"expense"}`, http.StatusBadRequest},
		{"other", `{"keyword":"bestand","classification":"other"}`, http.StatusBadRequest},
		{"shadowed", `{"keyword":"Mietkosten","classification":"revenue"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, do(mux, http.MethodPost, "/api/classification-rules", tt.body).Code)
		})
	}

	require.Equal(t, http.StatusCreated, do(mux, http.MethodPost, "/api/classification-rules", `{"keyword":"bestand","classification":"expense"}`).Code)
	assert.Equal(t, http.StatusConflict, do(mux, http.MethodPost, "/api/classification-rules", `{"keyword":"Bestand","classification":"expense"}`).Code)
}

func TestListAndDelete(t *testing.T) {
	mux, repo := newServer(t)
	require.Equal(t, http.StatusCreated, do(mux, http.MethodPost, "/api/classification-rules", `{"keyword":"bestand","classification":"expense"}`).Code)

	rec := do(mux, http.MethodGet, "/api/classification-rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"keyword":"bestand"`)

	id := repo.rules[0].ID.String()
	assert.Equal(t, http.StatusNoContent, do(mux, http.MethodDelete, "/api/classification-rules/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodDelete, "/api/classification-rules/"+id, "").Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodDelete, "/api/classification-rules/not-a-uuid", "").Code)
}
