package server

import (
	"strings"

	"github.com/badrx15/creavisionbot/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

func bindPagination(c *gin.Context) (pagination.Pagination, error) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		return pagination.Pagination{}, newValidationError("page_size", "invalid_page_size", "page_size must be an integer")
	}
	page.PageToken = strings.TrimSpace(page.PageToken)
	return page.Normalize(), nil
}
