// Package services provides the business logic layer.
//
// This file implements the CatalogService, which exposes read-side
// operations over the car catalog: paginated listing, lookup, and
// keyword search. The catalog is maintained out of band (seed data or admin
// tooling); the advisory pipeline only reads it.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/ymzhao/go-car-advisor/internal/domain"
	"github.com/ymzhao/go-car-advisor/internal/repo"
	"github.com/ymzhao/go-car-advisor/internal/search"
)

// CatalogService exposes the car catalog to handlers and to the
// recommendation matcher.
type CatalogService struct {
	DB *gorm.DB

	// SearchLimit caps keyword-search results. Defaults to 20 when unset.
	SearchLimit int
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{DB: db, SearchLimit: 20}
}

// Get fetches one catalog record.
func (s *CatalogService) Get(ctx context.Context, id string) (*domain.Car, error) {
	car, err := repo.GetCar(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCarNotFound
		}
		return nil, err
	}
	return car, nil
}

// ListPage returns a page of catalog records plus the total count.
func (s *CatalogService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Car, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountCars(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Car{}, 0, nil
	}

	items, err := repo.ListCarsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// Search resolves free-text keywords against make, model, and category, then
// orders the hits by relevance to the full query.
func (s *CatalogService) Search(ctx context.Context, query string) ([]domain.Car, error) {
	limit := s.SearchLimit
	if limit <= 0 {
		limit = 20
	}
	keywords := strings.Fields(query)
	cars, err := repo.SearchCars(ctx, s.DB, keywords, limit)
	if err != nil || len(cars) <= 1 {
		return cars, err
	}
	return rankCars(query, cars), nil
}

// rankCars reorders cars by similarity between the query and the flattened
// catalog record. Cars the ranker cannot score keep their original relative
// order after the ranked ones.
func rankCars(query string, cars []domain.Car) []domain.Car {
	byID := make(map[string]domain.Car, len(cars))
	docs := make([]search.Document, 0, len(cars))
	for _, c := range cars {
		byID[c.ID] = c
		fields := []string{c.Make, c.Model, c.Category, c.FuelType, c.DescriptionEN, c.DescriptionZH}
		fields = append(fields, c.Features...)
		docs = append(docs, search.Document{ID: c.ID, Text: search.FlattenFields(fields...)})
	}

	idx := search.NewIndexFromDocs(docs)
	ranked := idx.TopK(query, len(cars))

	out := make([]domain.Car, 0, len(cars))
	seen := make(map[string]struct{}, len(ranked))
	for _, r := range ranked {
		if c, ok := byID[r.ID]; ok {
			out = append(out, c)
			seen[r.ID] = struct{}{}
		}
	}
	for _, c := range cars {
		if _, ok := seen[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// SearchCars implements recommend.Catalog over the same store.
func (s *CatalogService) SearchCars(ctx context.Context, keywords []string, limit int) ([]domain.Car, error) {
	return repo.SearchCars(ctx, s.DB, keywords, limit)
}
