package helper_util

import (
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
)

func GetPaginationParams(c *gin.Context) (limit int, offset int, err error) {
	limit, err = strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil {
		return 0, 0, apperrors.ErrInvalidPagination
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		return 0, 0, apperrors.ErrInvalidPagination
	}
	return limit, offset, nil
}
