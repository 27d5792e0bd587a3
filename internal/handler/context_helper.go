package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholar-admissions-api/internal/middleware"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
	appErrors "github.com/noah-isme/scholar-admissions-api/pkg/errors"
	"github.com/noah-isme/scholar-admissions-api/pkg/response"
)

const maxPageSize = 500

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext resolves the acting user or writes a 401 and returns false.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return models.ActorFromClaims(claims), true
}

// bindJSON decodes the request body, writing a validation error on failure.
func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message))
		return false
	}
	return true
}

// pageParams reads page and page_size. A zero size means the caller did not ask for paging.
func pageParams(c *gin.Context) (page, size int, err error) {
	page, size = 1, 0
	if raw := strings.TrimSpace(c.Query("page")); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil || page < 1 {
			return 0, 0, appErrors.Clone(appErrors.ErrValidation, "page must be a positive integer")
		}
	}
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		if size, err = strconv.Atoi(raw); err != nil || size < 1 || size > maxPageSize {
			return 0, 0, appErrors.Clone(appErrors.ErrValidation, "page_size must be between 1 and "+strconv.Itoa(maxPageSize))
		}
	}
	return page, size, nil
}

func paginate(records []models.Scholar, page, size int) ([]models.Scholar, *models.Pagination) {
	if size == 0 {
		return records, nil
	}
	meta := &models.Pagination{Page: page, PageSize: size, TotalCount: len(records)}
	start := (page - 1) * size
	if start >= len(records) {
		return []models.Scholar{}, meta
	}
	end := start + size
	if end > len(records) {
		end = len(records)
	}
	return records[start:end], meta
}
