package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"hostpanel/internal/apperr"
	"hostpanel/internal/middleware"
	"hostpanel/internal/model"
)

func ok(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, model.Success(message, data))
}

func created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, model.Success(message, data))
}

func fail(c *gin.Context, err error) {
	middleware.AbortWithError(c, err)
}

// bind decodes and validates the JSON body. A failure has already been
// rendered when it returns false.
func bind(c *gin.Context, body any) bool {
	if err := c.ShouldBindJSON(body); err != nil {
		fail(c, apperr.Wrap(err, apperr.Invalid, apperr.CodeBadRequest, "Invalid request body"))
		return false
	}
	return true
}

func principal(c *gin.Context) (model.Principal, bool) {
	p, found := middleware.PrincipalFromContext(c)
	if !found {
		fail(c, apperr.ErrUnauthorized())
	}
	return p, found
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		fail(c, apperr.ErrBadRequest("Invalid "+name))
		return 0, false
	}
	return uint(id), true
}
