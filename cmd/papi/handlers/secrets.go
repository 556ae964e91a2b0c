package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ai4os/papi/internal/authn"
	"github.com/ai4os/papi/internal/server"
	"github.com/ai4os/papi/pkg/apierrors"
)

type secretPutBody struct {
	Path  string            `json:"path"`
	Value map[string]string `json:"value"`
}

func SecretsList(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := authn.FromContext(c)
		out, err := s.Secrets.List(c.Request().Context(), claims.Subject, c.QueryParam("vo"), c.QueryParam("path"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, out)
	}
}

func SecretsPut(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := authn.FromContext(c)
		var body secretPutBody
		if err := c.Bind(&body); err != nil {
			return apierrors.BadRequest("malformed request body: " + err.Error())
		}
		if err := s.Secrets.Put(c.Request().Context(), claims.Subject, c.QueryParam("vo"), body.Path, body.Value); err != nil {
			return err
		}
		return c.NoContent(http.StatusCreated)
	}
}

func SecretsDelete(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := authn.FromContext(c)
		if err := s.Secrets.Delete(c.Request().Context(), claims.Subject, c.QueryParam("vo"), c.QueryParam("path")); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}
