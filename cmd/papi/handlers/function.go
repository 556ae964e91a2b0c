package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ai4os/papi/internal/server"
	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
)

func bearerFrom(c echo.Context) string {
	return strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
}

func FunctionList(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, err := s.Function.List(c.Request().Context(), bearerFrom(c), c.QueryParam("vo"))
		if err != nil {
			return err
		}
		return c.JSONBlob(http.StatusOK, raw)
	}
}

func FunctionCreate(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		var svc apitypes.FunctionService
		if err := c.Bind(&svc); err != nil {
			return apierrors.BadRequest("malformed request body: " + err.Error())
		}
		url, err := s.Function.Create(c.Request().Context(), bearerFrom(c), svc)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, map[string]string{"url": url})
	}
}

func FunctionUpdate(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		var svc apitypes.FunctionService
		if err := c.Bind(&svc); err != nil {
			return apierrors.BadRequest("malformed request body: " + err.Error())
		}
		url, err := s.Function.Update(c.Request().Context(), bearerFrom(c), svc)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]string{"url": url})
	}
}

func FunctionDelete(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.Function.Delete(c.Request().Context(), bearerFrom(c), c.QueryParam("vo"), c.QueryParam("name")); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func FunctionLogs(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, err := s.Function.Logs(c.Request().Context(), bearerFrom(c), c.QueryParam("vo"), c.QueryParam("name"))
		if err != nil {
			return err
		}
		return c.JSONBlob(http.StatusOK, raw)
	}
}
