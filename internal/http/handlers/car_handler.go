// Car catalog HTTP handlers.
//
// This file exposes read-only endpoints over the car catalog:
//   - GET /cars            (list, paginated)
//   - GET /cars/{id}       (fetch)
//   - GET /cars/search     (keyword search)
//
// Catalog maintenance (inserts, updates) is not part of the public API; the
// catalog is seeded at startup.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ymzhao/go-car-advisor/internal/domain"
	"github.com/ymzhao/go-car-advisor/internal/services"
)

// ListCarsResponse wraps a page of catalog records.
type ListCarsResponse struct {
	Cars       []domain.Car `json:"cars"`
	Pagination Pagination   `json:"pagination"`
}

// ListCars godoc
// @ID          listCars
// @Summary     List catalog cars (paginated)
// @Tags        Cars
// @Produce     json
//
// @Param       page       query  int  false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListCarsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /cars [get]
func (h *Handlers) ListCars(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.catSvc.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListCarsResponse{
		Cars:       items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// GetCar godoc
// @ID          getCar
// @Summary     Fetch one catalog car
// @Tags        Cars
// @Produce     json
//
// @Param       id  path  string  true  "Car ID"
//
// @Success     200  {object} domain.Car
// @Failure     404  {object} handlers.ErrorResponse "Car not found"
// @Router      /cars/{id} [get]
func (h *Handlers) GetCar(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "car id required")
		return
	}

	car, err := h.catSvc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrCarNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "car not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, car)
}

// SearchCars godoc
// @ID          searchCars
// @Summary     Search the catalog
// @Description Matches free-text keywords against make, model, and category. An empty query returns an empty list.
// @Tags        Cars
// @Produce     json
//
// @Param       q  query  string  true  "Search keywords"  example(toyota suv)
//
// @Success     200  {array}  domain.Car
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /cars/search [get]
func (h *Handlers) SearchCars(c *gin.Context) {
	q := c.Query("q")

	cars, err := h.catSvc.Search(c.Request.Context(), q)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if cars == nil {
		cars = []domain.Car{}
	}
	ok(c, http.StatusOK, cars)
}
