package recommend

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/ymzhao/go-car-advisor/internal/domain"
)

// fakeCatalog returns canned cars or a canned error and records the limit it
// was asked for.
type fakeCatalog struct {
	cars      []domain.Car
	err       error
	lastLimit int
}

func (f *fakeCatalog) SearchCars(_ context.Context, keywords []string, limit int) ([]domain.Car, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.cars) > limit {
		return f.cars[:limit], nil
	}
	return f.cars, nil
}

func TestMatchCatalog_ScoresByCoverage(t *testing.T) {
	cat := &fakeCatalog{cars: []domain.Car{
		{ID: "car-1", Make: "Toyota", Model: "RAV4", Category: "SUV"},
		{ID: "car-2", Make: "Toyota", Model: "Corolla", Category: "sedan"},
	}}

	matches := MatchCatalog(context.Background(), cat, []string{"Toyota", "SUV"})
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	// RAV4 hits both keywords, Corolla only the brand.
	if matches[0].Score != 100 || matches[1].Score != 50 {
		t.Fatalf("scores = %d, %d; want 100, 50", matches[0].Score, matches[1].Score)
	}
	if !strings.Contains(matches[0].ReasonEN, "Toyota, SUV") {
		t.Fatalf("reason does not list hits: %q", matches[0].ReasonEN)
	}
	if !strings.Contains(matches[0].ReasonZH, "丰田") {
		t.Fatalf("Chinese reason not localized: %q", matches[0].ReasonZH)
	}
}

func TestMatchCatalog_CapIsFive(t *testing.T) {
	var many []domain.Car
	for i := 0; i < 9; i++ {
		many = append(many, domain.Car{ID: fmt.Sprintf("car-%d", i), Make: "Toyota", Model: fmt.Sprintf("M%d", i), Category: "SUV"})
	}
	cat := &fakeCatalog{cars: many}

	matches := MatchCatalog(context.Background(), cat, []string{"Toyota", "SUV", "hybrid", "sedan"})
	if len(matches) > MaxMatches {
		t.Fatalf("cap exceeded: %d matches", len(matches))
	}
	if cat.lastLimit != MaxMatches {
		t.Fatalf("catalog asked for limit %d, want %d", cat.lastLimit, MaxMatches)
	}
}

func TestMatchCatalog_CatalogFailureSwallowed(t *testing.T) {
	cat := &fakeCatalog{err: errors.New("catalog down")}
	if matches := MatchCatalog(context.Background(), cat, []string{"Toyota"}); len(matches) != 0 {
		t.Fatalf("expected empty result on catalog failure, got %d", len(matches))
	}
}

func TestMatchCatalog_NoKeywordsSkipsCatalog(t *testing.T) {
	cat := &fakeCatalog{cars: []domain.Car{{ID: "car-1"}}, lastLimit: -1}
	if matches := MatchCatalog(context.Background(), cat, nil); len(matches) != 0 {
		t.Fatalf("expected no matches without keywords")
	}
	if cat.lastLimit != -1 {
		t.Fatalf("catalog should not be queried without keywords")
	}
}

func TestCanonicalize(t *testing.T) {
	got := Canonicalize([]string{"丰田", "Toyota", "越野车", " ", "RAV4"})
	// Chinese forms fold into their English counterparts; duplicates collapse.
	want := []string{"Toyota", "SUV", "RAV4"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Canonicalize = %v, want %v", got, want)
	}
}

func TestSuggestNextSteps(t *testing.T) {
	withMatches := SuggestNextSteps([]Match{{Car: domain.Car{ID: "car-1"}}})
	if len(withMatches) != 3 {
		t.Fatalf("expected 3 proposals with matches, got %d", len(withMatches))
	}
	if withMatches[0].ActionType != domain.ActionVisit || withMatches[0].Priority != domain.PriorityHigh {
		t.Fatalf("first proposal should be a high-priority visit: %+v", withMatches[0])
	}

	without := SuggestNextSteps(nil)
	if len(without) != 1 || without[0].ActionType != domain.ActionPrepare {
		t.Fatalf("expected only the budget step without matches: %+v", without)
	}

	if !reflect.DeepEqual(SuggestNextSteps(nil), SuggestNextSteps(nil)) {
		t.Fatalf("suggestions not deterministic")
	}
}
