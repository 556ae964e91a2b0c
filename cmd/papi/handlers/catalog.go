// Package handlers holds the echo.HandlerFunc factories cmd/papi wires
// into routes, one file per controller, following the teacher's
// cmd/knitd/handlers layout (a constructor closing over dependencies,
// returning a plain echo.HandlerFunc).
package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ai4os/papi/internal/server"
	"github.com/ai4os/papi/pkg/apitypes"
)

func CatalogList(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		kind := apitypes.Kind(c.Param("kind"))
		names, err := s.Catalog.List(c.Request().Context(), kind)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, names)
	}
}

func CatalogDetail(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		kind := apitypes.Kind(c.Param("kind"))
		items, err := s.Catalog.Detail(c.Request().Context(), kind)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, items)
	}
}

func CatalogMetadata(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		kind := apitypes.Kind(c.Param("kind"))
		item, err := s.Catalog.Metadata(c.Request().Context(), kind, c.Param("name"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, item)
	}
}

func CatalogConfig(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		kind := apitypes.Kind(c.Param("kind"))
		schema, err := s.Catalog.ConfigTemplate(c.Request().Context(), kind, c.Param("name"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, schema)
	}
}

// CatalogRefresh invalidates cached entries (spec §6: admin-only). kind
// and name are optional query parameters narrowing the invalidation.
func CatalogRefresh(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		kind := apitypes.Kind(c.QueryParam("kind"))
		s.Catalog.Refresh(kind, c.QueryParam("name"))
		return c.NoContent(http.StatusNoContent)
	}
}
