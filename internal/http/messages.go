package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/sms-inbox/internal/http/middleware"
	"github.com/jmehdipour/sms-inbox/internal/model"
	"github.com/jmehdipour/sms-inbox/internal/service/query"
	echo "github.com/labstack/echo/v4"
)

func listMessagesHandler(svc *query.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := query.DefaultLimit
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return invalidQuery(c, "limit must be an integer")
			}
			limit = n
		}
		if v := c.QueryParam("offset"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return invalidQuery(c, "offset must be an integer")
			}
			offset = n
		}

		f := model.Filter{
			From:  msisdnParam(c.QueryParam("from")),
			Since: c.QueryParam("since"),
			Q:     c.QueryParam("q"),
		}

		page, err := svc.List(c.Request().Context(), f, limit, offset)
		if err != nil {
			if errors.Is(err, query.ErrInvalidLimit) || errors.Is(err, query.ErrInvalidOffset) {
				return invalidQuery(c, err.Error())
			}
			middleware.SetLogField(c, "error", err.Error())
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, page)
	}
}

func statsHandler(svc *query.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, err := svc.Stats(c.Request().Context())
		if err != nil {
			middleware.SetLogField(c, "error", err.Error())
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		return c.JSON(http.StatusOK, st)
	}
}

func invalidQuery(c echo.Context, detail string) error {
	return c.JSON(http.StatusUnprocessableEntity, map[string]string{
		"error":  "validation error",
		"detail": detail,
	})
}

// msisdnParam restores a leading '+' that form-decoding turned into a space
// (?from=+1555... sent unescaped).
func msisdnParam(v string) string {
	if strings.HasPrefix(v, " ") {
		return "+" + v[1:]
	}
	return v
}
