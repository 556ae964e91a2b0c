package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/ai4os/papi/internal/authn"
	"github.com/ai4os/papi/internal/server"
	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/deployment"
)

// createBody is the POST body shape spec §8 scenario S1 names: a flat
// general/hardware/storage/extra config alongside the catalog item name.
type createBody struct {
	Name     string                     `json:"name"`
	General  map[string]any             `json:"general"`
	Hardware map[string]any             `json:"hardware"`
	Storage  map[string]any             `json:"storage"`
	Extra    map[string]map[string]any  `json:"extra"`
}

func (b createBody) stringField(key string) string {
	v, _ := b.General[key].(string)
	return v
}

// num reads a hardware field as a plain number, or, when the caller
// submitted a Kubernetes-style quantity string (e.g. "4Gi", "500m"),
// parses it with resource.Quantity and scales it to the requested unit.
// megabytes selects the MiB scale for ram/disk fields; cpu_num/gpu_num
// are always whole counts.
func num(m map[string]any, key string, megabytes bool) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		q, err := resource.ParseQuantity(v)
		if err != nil {
			return 0
		}
		if megabytes {
			return int(q.Value() / (1024 * 1024))
		}
		return int(q.Value())
	}
	return 0
}

func (b createBody) resources() apitypes.Resources {
	return apitypes.Resources{
		CPUCores: num(b.Hardware, "cpu_num", false),
		MemoryMB: num(b.Hardware, "ram", true),
		DiskMB:   num(b.Hardware, "disk", true),
		GPUCount: num(b.Hardware, "gpu_num", false),
		GPUModel: b.stringField("gpu_model"),
	}
}

func DeploymentsList(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := authn.FromContext(c)
		vo := c.QueryParam("vo")
		kind := apitypes.Kind(c.Param("kind"))
		deployments, err := s.Deployment.List(c.Request().Context(), claims.Subject, vo, []apitypes.Kind{kind})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, deployments)
	}
}

func DeploymentsGet(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := authn.FromContext(c)
		vo := c.QueryParam("vo")
		d, err := s.Deployment.Get(c.Request().Context(), claims.Subject, vo, c.Param("uuid"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, d)
	}
}

func DeploymentsCreate(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := authn.FromContext(c)
		kind := apitypes.Kind(c.Param("kind"))
		if !kind.Valid() {
			return apierrors.BadRequest("unsupported kind: " + string(kind))
		}
		var body createBody
		if err := c.Bind(&body); err != nil {
			return apierrors.BadRequest("malformed request body: " + err.Error())
		}
		vo := body.stringField("vo")
		if vo == "" {
			vo = c.QueryParam("vo")
		}

		resp, err := s.Deployment.Create(c.Request().Context(), deployment.CreateInput{
			Subject:     claims.Subject,
			OwnerName:   claims.Name,
			OwnerEmail:  claims.Email,
			VO:          vo,
			Kind:        kind,
			Name:        body.Name,
			Title:       body.stringField("title"),
			Hostname:    body.stringField("hostname"),
			IDEPassword: body.stringField("jupyter_password"),
			Config: apitypes.UserConfig{
				General: body.General, Hardware: body.Hardware,
				Storage: body.Storage, Extra: body.Extra,
			},
			Resources: body.resources(),
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, resp)
	}
}

func DeploymentsDelete(s *server.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := authn.FromContext(c)
		vo := c.QueryParam("vo")
		if err := s.Deployment.Delete(c.Request().Context(), claims.Subject, vo, c.Param("uuid")); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}
