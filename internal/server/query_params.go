package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/studiosync/pkg/db/pagination"
)

const monthLayout = "2006-01"

var (
	errInvalidPageSize = errors.New("invalid_page_size")
	errInvalidMonth    = errors.New("invalid_month")
)

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parsePagination reads page_token and page_size. limit is accepted as an
// alias of page_size.
func parsePagination(c *gin.Context) (pagination.Pagination, error) {
	raw := c.Query("page_size")
	if raw == "" {
		raw = c.Query("limit")
	}
	size, err := parseOptionalInt(raw)
	if err != nil || (size != nil && *size < 0) {
		return pagination.Pagination{}, errInvalidPageSize
	}
	page := pagination.Pagination{PageToken: strings.TrimSpace(c.Query("page_token"))}
	if size != nil {
		page.PageSize = *size
	}
	return page, nil
}

// parseOptionalMonth validates a YYYY-MM month key.
func parseOptionalMonth(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", nil
	}
	if _, err := time.Parse(monthLayout, trimmed); err != nil {
		return "", errInvalidMonth
	}
	return trimmed, nil
}
