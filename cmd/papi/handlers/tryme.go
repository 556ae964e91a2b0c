package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ai4os/papi/internal/authn"
	"github.com/ai4os/papi/internal/server"
	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/tryme"
)

func TryMeList(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := authn.FromContext(c)
		out, err := s.TryMe.List(c.Request().Context(), claims.Subject)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, out)
	}
}

func TryMeCreate(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := authn.FromContext(c)
		kind := apitypes.Kind(c.Param("kind"))
		if kind != apitypes.KindTryMe {
			return apierrors.BadRequest("unsupported try-me kind: " + string(kind))
		}
		var body createBody
		if err := c.Bind(&body); err != nil {
			return apierrors.BadRequest("malformed request body: " + err.Error())
		}
		resp, err := s.TryMe.Create(c.Request().Context(), tryme.CreateInput{
			Subject:    claims.Subject,
			OwnerName:  claims.Name,
			OwnerEmail: claims.Email,
			Name:       body.Name,
			Config: apitypes.UserConfig{
				General: body.General, Hardware: body.Hardware,
				Storage: body.Storage, Extra: body.Extra,
			},
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, resp)
	}
}

func TryMeDelete(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := authn.FromContext(c)
		if err := s.TryMe.Delete(c.Request().Context(), claims.Subject, c.Param("uuid")); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}
