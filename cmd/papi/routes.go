package main

import (
	"github.com/labstack/echo/v4"

	"github.com/ai4os/papi/cmd/papi/handlers"
	"github.com/ai4os/papi/internal/server"
)

// registerRoutes wires every path from spec §6's route table onto e,
// following the teacher's cmd/knitd/main.go convention of grouping
// routes by resource inline rather than in a generated router.
func registerRoutes(e *echo.Echo, s *server.Server) {
	v1 := e.Group("/v1")

	catalogGrp := v1.Group("/catalog")
	catalogGrp.GET("/:kind", handlers.CatalogList(s))
	catalogGrp.GET("/:kind/detail", handlers.CatalogDetail(s))
	catalogGrp.GET("/:kind/:name/metadata", handlers.CatalogMetadata(s))
	catalogGrp.GET("/:kind/:name/config", handlers.CatalogConfig(s))
	catalogGrp.POST("/refresh", handlers.CatalogRefresh(s), s.Authn.Admin())

	required := s.Authn.Required()

	depGrp := v1.Group("/deployments", required)
	depGrp.GET("/:kind", handlers.DeploymentsList(s))
	depGrp.POST("/:kind", handlers.DeploymentsCreate(s))
	depGrp.GET("/:kind/:uuid", handlers.DeploymentsGet(s))
	depGrp.DELETE("/:kind/:uuid", handlers.DeploymentsDelete(s))

	tryMeGrp := v1.Group("/try_me", s.Authn.LowBar())
	tryMeGrp.GET("/:kind", handlers.TryMeList(s))
	tryMeGrp.POST("/:kind", handlers.TryMeCreate(s))
	tryMeGrp.DELETE("/:kind/:uuid", handlers.TryMeDelete(s))

	fnGrp := v1.Group("/inference/services", required)
	fnGrp.GET("", handlers.FunctionList(s))
	fnGrp.POST("", handlers.FunctionCreate(s))
	fnGrp.PUT("", handlers.FunctionUpdate(s))
	fnGrp.DELETE("", handlers.FunctionDelete(s))
	fnGrp.GET("/logs", handlers.FunctionLogs(s))

	snapGrp := v1.Group("/snapshots", required)
	snapGrp.GET("", handlers.SnapshotsList(s))
	snapGrp.POST("", handlers.SnapshotsCreate(s))
	snapGrp.DELETE("/:uuid", handlers.SnapshotsDelete(s))

	secGrp := v1.Group("/secrets", required)
	secGrp.GET("", handlers.SecretsList(s))
	secGrp.POST("", handlers.SecretsPut(s))
	secGrp.DELETE("", handlers.SecretsDelete(s))

	statsGrp := v1.Group("/stats")
	statsGrp.GET("/deployments", handlers.StatsDeployments(s), required)
	statsGrp.GET("/cluster", handlers.StatsCluster(s))

	v1.POST("/llm", handlers.LLMProxy(s), required)
	v1.GET("/llm/catalog", handlers.LLMCatalog(s), required)
}
