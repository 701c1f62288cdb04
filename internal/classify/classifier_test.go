package classify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/rules"
)

// fakeResolver hands out sequential ids per category name.
type fakeResolver struct {
	err   error
	ids   map[string]int64
	calls []string
	mu    sync.Mutex
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{ids: make(map[string]int64)}
}

func (f *fakeResolver) ResolveOrCreate(_ context.Context, name string) (*model.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.err != nil {
		return nil, f.err
	}
	id, ok := f.ids[name]
	if !ok {
		id = int64(len(f.ids) + 1)
		f.ids[name] = id
	}
	return &model.Category{ID: id, Name: name, IsActive: true}, nil
}

func defaultSource(t *testing.T) rules.Static {
	t.Helper()
	snap, err := rules.NewSnapshot(rules.DefaultRules())
	require.NoError(t, err)
	return rules.Static{S: snap}
}

func TestClassifier_Classify_DefaultRules(t *testing.T) {
	tests := []struct {
		name         string
		merchant     string
		description  string
		wantCategory string
		wantMatch    bool
	}{
		{name: "keyword", merchant: "Starbucks Senayan", wantCategory: "Food & Dining", wantMatch: true},
		{name: "earlier rule wins over later", merchant: "Grab", description: "ride to office", wantCategory: "Food & Dining", wantMatch: true},
		{name: "keyword in description", merchant: "", description: "Uber trip", wantCategory: "Transportation", wantMatch: true},
		{name: "regex pattern", merchant: "Sunrise RESTAURANT", wantCategory: "Food & Dining", wantMatch: true},
		{name: "utilities", merchant: "PLN", description: "electricity token", wantCategory: "Utilities", wantMatch: true},
		{name: "salary", merchant: "PT Maju", description: "Payroll June", wantCategory: "Salary", wantMatch: true},
		{name: "no match", merchant: "qqq", description: "zzz", wantMatch: false},
		{name: "empty text", merchant: "", description: "", wantMatch: false},
		{name: "whitespace only", merchant: "   ", description: "\t", wantMatch: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := newFakeResolver()
			c := New(defaultSource(t), resolver, common.DiscardLogger())

			id, matched, err := c.Classify(context.Background(), tt.merchant, tt.description, decimal.NewFromInt(10))
			require.NoError(t, err)
			assert.Equal(t, tt.wantMatch, matched)

			if !tt.wantMatch {
				assert.Zero(t, id)
				assert.Empty(t, resolver.calls, "resolver must not be consulted without a match")
				return
			}
			require.Len(t, resolver.calls, 1)
			assert.Equal(t, tt.wantCategory, resolver.calls[0])
			assert.Equal(t, resolver.ids[tt.wantCategory], id)
		})
	}
}

func TestClassifier_AmountDoesNotAffectResult(t *testing.T) {
	c := New(defaultSource(t), newFakeResolver(), common.DiscardLogger())
	ctx := context.Background()

	id1, ok1, err := c.Classify(ctx, "Netflix", "", decimal.NewFromInt(1))
	require.NoError(t, err)
	id2, ok2, err := c.Classify(ctx, "Netflix", "", decimal.NewFromInt(-999999))
	require.NoError(t, err)

	assert.Equal(t, ok1, ok2)
	assert.Equal(t, id1, id2)
}

func TestClassifier_PatternsAreCaseInsensitive(t *testing.T) {
	snap, err := rules.NewSnapshot([]model.Rule{
		{Name: "acme", Patterns: []string{`^ACME\s+corp`}, CategoryName: "Work"},
	})
	require.NoError(t, err)
	c := New(rules.Static{S: snap}, newFakeResolver(), common.DiscardLogger())

	_, ok, err := c.Classify(context.Background(), "acme   CORP", "invoice", decimal.Zero)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClassifier_FirstMatchWins(t *testing.T) {
	ordered := []model.Rule{
		{Name: "specific", Keywords: []string{"coffee bean"}, CategoryName: "Coffee"},
		{Name: "broad", Keywords: []string{"coffee"}, CategoryName: "Drinks"},
		{Name: "regex", Patterns: []string{"bean"}, CategoryName: "Beans"},
	}
	snap, err := rules.NewSnapshot(ordered)
	require.NoError(t, err)
	c := New(rules.Static{S: snap}, newFakeResolver(), common.DiscardLogger())

	texts := []string{"coffee bean co", "cold coffee", "bean bag", "tea", "COFFEE BEAN", "black beans coffee"}
	for _, text := range texts {
		t.Run(text, func(t *testing.T) {
			normalized := NormalizeText(text, "")
			var want string
			for _, e := range snap.Entries() {
				if e.Matches(normalized) {
					want = e.Rule.CategoryName
					break
				}
			}

			got, ok := c.Match(text, "")
			if want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, want, got.CategoryName)
		})
	}
}

func TestClassifier_SkipsRulesWithoutCategory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `uncategorized:
  keywords: [coffee]
  patterns: []
  category_name: ""
drinks:
  keywords: [coffee]
  patterns: []
  category_name: Drinks
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	store := rules.NewStore(path, common.DiscardLogger())
	store.Load()

	c := New(store, newFakeResolver(), common.DiscardLogger())
	rule, ok := c.Match("coffee", "")
	require.True(t, ok)
	assert.Equal(t, "drinks", rule.Name)
}

func TestClassifier_ResolverErrorIsReturned(t *testing.T) {
	resolver := newFakeResolver()
	resolver.err = errors.New("database is locked")
	c := New(defaultSource(t), resolver, common.DiscardLogger())

	_, ok, err := c.Classify(context.Background(), "Netflix", "", decimal.Zero)
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, resolver.err)
	assert.Contains(t, err.Error(), "Entertainment")
}

func TestClassifier_Suggest(t *testing.T) {
	snap, err := rules.NewSnapshot([]model.Rule{
		{Name: "a", Keywords: []string{"maret"}, CategoryName: "Groceries"},
		{Name: "b", Patterns: []string{"indo.*"}, CategoryName: "Convenience"},
		{Name: "c", Keywords: []string{"indomaret"}, CategoryName: "Groceries"},
		{Name: "d", Keywords: []string{"petrol"}, CategoryName: "Fuel"},
	})
	require.NoError(t, err)
	c := New(rules.Static{S: snap}, newFakeResolver(), common.DiscardLogger())

	assert.Equal(t, []string{"Groceries", "Convenience"}, c.Suggest("Indomaret Point"))
	assert.Empty(t, c.Suggest("unknown shop"))
	assert.Empty(t, c.Suggest(""))
}

func TestClassifier_UsesLiveStoreSnapshot(t *testing.T) {
	store := rules.NewStore(filepath.Join(t.TempDir(), "rules.yaml"), common.DiscardLogger())
	store.Load()
	c := New(store, newFakeResolver(), common.DiscardLogger())

	_, ok := c.Match("Kopi Kenangan", "")
	require.False(t, ok)

	require.NoError(t, store.Upsert("coffee", model.Rule{Keywords: []string{"kopi"}, CategoryName: "Coffee"}))
	rule, ok := c.Match("Kopi Kenangan", "")
	require.True(t, ok)
	assert.Equal(t, "Coffee", rule.CategoryName)
}
