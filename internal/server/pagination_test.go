package server

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func paramsForQuery(query string) PaginationParams {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/api/battles"+query, nil)
	return GetPaginationParams(c)
}

func TestGetPaginationParamsDefaults(t *testing.T) {
	params := paramsForQuery("")
	assert.Equal(t, 1, params.Page)
	assert.Equal(t, DefaultPageSize, params.PageSize)
}

func TestGetPaginationParamsParsesAndCaps(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		page     int
		pageSize int
	}{
		{"explicit values", "?page=3&page_size=25", 3, 25},
		{"page size capped", "?page_size=500", 1, MaxPageSize},
		{"invalid page ignored", "?page=-1&page_size=0", 1, DefaultPageSize},
		{"garbage ignored", "?page=abc&page_size=xyz", 1, DefaultPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := paramsForQuery(tt.query)
			assert.Equal(t, tt.page, params.Page)
			assert.Equal(t, tt.pageSize, params.PageSize)
		})
	}
}

func TestCalculateOffsetAndTotalPages(t *testing.T) {
	params := PaginationParams{Page: 3, PageSize: 10, Total: 25}
	assert.Equal(t, 20, params.CalculateOffset())
	assert.Equal(t, 3, params.CalculateTotalPages())

	params.Total = 30
	assert.Equal(t, 3, params.CalculateTotalPages())

	params.Total = 0
	assert.Equal(t, 0, params.CalculateTotalPages())
}
