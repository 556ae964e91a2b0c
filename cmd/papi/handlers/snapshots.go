package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ai4os/papi/internal/authn"
	"github.com/ai4os/papi/internal/server"
	"github.com/ai4os/papi/pkg/apierrors"
)

type snapshotCreateBody struct {
	VO          string `json:"vo"`
	Target      string `json:"source_deployment_uuid"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func SnapshotsList(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := authn.FromContext(c)
		vo := c.QueryParam("vo")
		v, ok := s.VOs[vo]
		if !ok {
			return apierrors.BadRequest("unknown VO: " + vo)
		}
		out, err := s.Snapshot.List(c.Request().Context(), claims.Subject, v.Namespace)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, out)
	}
}

func SnapshotsCreate(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := authn.FromContext(c)
		var body snapshotCreateBody
		if err := c.Bind(&body); err != nil {
			return apierrors.BadRequest("malformed request body: " + err.Error())
		}
		id, err := s.Snapshot.Create(c.Request().Context(), claims.Subject, claims.Name, claims.Email,
			body.VO, body.Target, body.Title, body.Description)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, map[string]string{"snapshot_id": id})
	}
}

func SnapshotsDelete(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := authn.FromContext(c)
		if err := s.Snapshot.Delete(c.Request().Context(), claims.Subject, c.Param("uuid")); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}
