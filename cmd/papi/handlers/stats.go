package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ai4os/papi/internal/authn"
	"github.com/ai4os/papi/internal/server"
	"github.com/ai4os/papi/pkg/apierrors"
)

// StatsDeployments serves per-user accounting, merging the live quota
// snapshot with the historical CSV data plane when an accounting path is
// configured (spec §4.9's two data planes).
func StatsDeployments(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := authn.FromContext(c)
		vo := c.QueryParam("vo")
		v, ok := s.VOs[vo]
		if !ok {
			return apierrors.BadRequest("unknown VO: " + vo)
		}
		usage, err := s.Ledger.Usage(c.Request().Context(), claims.Subject, vo, v.Namespace)
		if err != nil {
			return err
		}
		resp := map[string]any{"live": usage}
		if s.Historical != nil {
			stats, err := s.Historical.UserStats(v.Namespace, claims.Subject)
			if err == nil {
				resp["historical"] = stats
			}
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// StatsCluster serves C9's live cluster-capacity snapshot, unauthenticated
// per spec §6's route table.
func StatsCluster(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, s.Stats.Snapshot())
	}
}
