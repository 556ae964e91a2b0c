package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ai4os/papi/internal/server"
)

func LLMCatalog(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, s.LLM.Catalog())
	}
}

func LLMProxy(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		model := c.QueryParam("model")
		if model == "" {
			model = c.Request().Header.Get("X-Model")
		}
		return s.LLM.Proxy(c, model)
	}
}
