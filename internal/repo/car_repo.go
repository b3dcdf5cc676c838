// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the read-mostly
// car catalog.
package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/ymzhao/go-car-advisor/internal/domain"
)

// GetCar fetches a catalog record by ID.
func GetCar(ctx context.Context, db *gorm.DB, id string) (*domain.Car, error) {
	var c domain.Car
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CountCars returns the catalog size.
func CountCars(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Car{}).Count(&total).Error
	return total, err
}

// ListCarsPage returns a paginated catalog slice ordered by make then model.
func ListCarsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Car, error) {
	var out []domain.Car
	err := db.WithContext(ctx).
		Order("make ASC, model ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SearchCars returns catalog records whose make, model, or category contains
// any of the given keywords (case-insensitive), capped at limit. The result
// order is the catalog's own (make, model); relevance ordering is the
// caller's concern.
//
// An empty keyword set yields an empty result without touching the database.
func SearchCars(ctx context.Context, db *gorm.DB, keywords []string, limit int) ([]domain.Car, error) {
	terms := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k != "" {
			terms = append(terms, strings.ToLower(k))
		}
	}
	if len(terms) == 0 {
		return []domain.Car{}, nil
	}

	q := db.WithContext(ctx).Model(&domain.Car{})
	var or *gorm.DB
	for _, t := range terms {
		like := "%" + t + "%"
		cond := db.Where("LOWER(make) LIKE ?", like).
			Or("LOWER(model) LIKE ?", like).
			Or("LOWER(category) LIKE ?", like)
		if or == nil {
			or = cond
		} else {
			or = or.Or(cond)
		}
	}
	q = q.Where(or).Order("make ASC, model ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []domain.Car
	err := q.Find(&out).Error
	return out, err
}
