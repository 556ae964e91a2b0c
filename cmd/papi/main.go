// Command papi runs the Platform API server: it loads the main YAML
// config (envsubst'ed against the process environment per spec §6),
// wires every subsystem into one internal/server.Server value, and
// serves the /v1 HTTP surface with echo, in the teacher's cmd/knitd/main.go
// style of a flat main() doing flag parsing, config load, handler wiring
// and server start, with no package-level mutable state.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ai4os/papi/internal/authn"
	"github.com/ai4os/papi/internal/server"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/catalog"
	"github.com/ai4os/papi/pkg/config"
	"github.com/ai4os/papi/pkg/echoutil"
	"github.com/ai4os/papi/pkg/function"
	"github.com/ai4os/papi/pkg/llm"
	"github.com/ai4os/papi/pkg/mailer"
	"github.com/ai4os/papi/pkg/metrics"
	"github.com/ai4os/papi/pkg/registryclient"
	"github.com/ai4os/papi/pkg/scheduler"
	"github.com/ai4os/papi/pkg/secretstore"
)

func main() {
	configPath := flag.String("config-path", "/etc/papi/main.yaml", "PAPI main config path")
	loglevel := flag.String("loglevel", "info", "log level: debug|info|warn|error|off")
	port := flag.String("port", "8080", "listen port")
	flag.Parse()

	logger := logrus.New()
	lvl, err := logrus.ParseLevel(*loglevel)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("can not read configuration: %s", err)
	}

	deps, err := buildDeps(cfg, logger)
	if err != nil {
		logger.Fatalf("can not wire dependencies: %s", err)
	}

	srv, err := server.New(cfg, *deps)
	if err != nil {
		logger.Fatalf("can not build server: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	srv.RunBackground(ctx)

	e := echo.New()
	e.Pre(middleware.AddTrailingSlash())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Auth.CORSOrigins,
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE},
	}))
	echoutil.SetLevel(e, *loglevel)
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}
	e.Use(echoutil.LogHandlerFunc)
	e.Use(metrics.Middleware)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	registerRoutes(e, srv)

	log.Println("registered routes:")
	for _, r := range e.Routes() {
		log.Println(r.Method, r.Path)
	}

	go func() {
		if err := e.Start(":" + *port); err != nil {
			logger.Info("server stopped: ", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("error during shutdown: %s", err)
		os.Exit(1)
	}
}

// buildDeps assembles server.Deps from cfg and the ambient environment
// variables spec §6 names (NOMAD_*, HARBOR_ROBOT_PASSWORD, LLM_API_KEY,
// PAPI_PROVENANCE_TOKEN's secret-store token, MAILING_TOKEN), following
// the Design Notes' "environment-variable fan-out" guidance to resolve
// every one of these exactly once, here, rather than scattering
// os.Getenv calls through the subsystem packages.
func buildDeps(cfg *config.Config, logger *logrus.Logger) (*server.Deps, error) {
	sched, err := scheduler.NewNomadScheduler(15 * time.Second)
	if err != nil {
		return nil, err
	}

	registry := registryclient.NewHarborRegistry(cfg.Harbor.BaseURL, cfg.Harbor.Username, os.Getenv("HARBOR_ROBOT_PASSWORD"))

	var store secretstore.Store
	if vaultAddr := os.Getenv("VAULT_ADDR"); vaultAddr != "" {
		vs, err := secretstore.NewVaultStore(vaultAddr, os.Getenv("VAULT_TOKEN"), "secrets")
		if err != nil {
			if config.IsProd() {
				return nil, err
			}
			logger.Warnf("secret store unavailable in dev mode, falling back to in-memory: %s", err)
			store = secretstore.NewFake()
		} else {
			store = vs
		}
	} else {
		store = secretstore.NewFake()
	}

	issuers := make([]*authn.Issuer, 0, len(cfg.Auth.OP))
	for _, op := range cfg.Auth.OP {
		iss, err := authn.NewIssuer(context.Background(), op.Issuer, op.Audience)
		if err != nil {
			if config.IsProd() {
				return nil, err
			}
			logger.Warnf("skipping unreachable OIDC issuer %s in dev mode: %s", op.Issuer, err)
			continue
		}
		issuers = append(issuers, iss)
	}

	sources := make([]catalog.Source, 0, len(cfg.CatalogSources))
	for _, cs := range cfg.CatalogSources {
		sources = append(sources, catalog.Source{
			Kind: cs.Kind, URL: cs.URL, Branch: cs.Branch, ModuleListPath: cs.ModuleListPath,
		})
	}

	templates := server.Templates{ByKind: map[apitypes.Kind]string{}}
	for kind, path := range cfg.Templates.ByKind {
		text, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		templates.ByKind[kind] = string(text)
	}
	if cfg.Templates.Snapshot != "" {
		text, err := os.ReadFile(cfg.Templates.Snapshot)
		if err != nil {
			return nil, err
		}
		templates.Snapshot = string(text)
	}
	if cfg.Templates.TryMe != "" {
		text, err := os.ReadFile(cfg.Templates.TryMe)
		if err != nil {
			return nil, err
		}
		templates.TryMe = string(text)
	}

	functionClusters := make(map[string]function.Cluster, len(cfg.OSCAR.Clusters))
	for vo, cl := range cfg.OSCAR.Clusters {
		functionClusters[vo] = function.Cluster{ClusterID: cl.ClusterID, Endpoint: cl.Endpoint}
	}

	var gateway *llm.Gateway
	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		gateway = llm.NewGateway(cfg.LLM.GatewayURL, apiKey)
	}

	var m mailer.Mailer
	if token := os.Getenv("MAILING_TOKEN"); token != "" && cfg.SMTP.Addr != "" {
		from := cfg.SMTP.From
		if from == "" {
			from = "papi@" + cfg.Self.Domain
		}
		m = mailer.NewSMTPMailer(cfg.SMTP.Addr, from, cfg.SMTP.User, token)
	}

	return &server.Deps{
		Scheduler:      sched,
		Registry:       registry,
		Secrets:        store,
		Mailer:         m,
		Issuers:        issuers,
		CatalogSources: sources,
		CatalogAllow:   registryclient.AllowList(cfg.CatalogAllow),
		CatalogLog:     logger,
		Templates:      templates,
		KindPriority:   defaultKindPriority(),
		KindSecrets:    defaultKindSecrets(),
		KindRoles:      defaultKindRoles(),
		HarborRobotPassword: os.Getenv("HARBOR_ROBOT_PASSWORD"),
		ProvenanceSecret:    os.Getenv("PAPI_PROVENANCE_TOKEN"),
		FunctionClusters:    functionClusters,
		LLMCatalog:          cfg.LLM.Catalog,
		LLMGateway:          gateway,
		AccountingPath:      cfg.AccountingPath,
	}, nil
}

// defaultKindPriority assigns the Scheduler priority band each workload
// kind submits at (spec §4.3 step 3's PRIORITY field); try-me sits in the
// lowest band per spec §4.7 ("a distinct template and a lower priority
// band"), interactive kinds in the middle, batch work highest so it
// drains ahead of long-lived services when the cluster is contended.
func defaultKindPriority() map[apitypes.Kind]int {
	return map[apitypes.Kind]int{
		apitypes.KindModule:          50,
		apitypes.KindTool:            50,
		apitypes.KindFunctionService: 50,
		apitypes.KindBatchInference:  60,
		apitypes.KindSnapshot:        60,
		apitypes.KindTryMe:           10,
	}
}

// defaultKindSecrets lists, per workload kind, the secret names C3 step 4
// resolves from C4 before rendering (spec §4.3: "MLflow credentials,
// rclone password, Harbor robot password, Hugging Face token").
func defaultKindSecrets() map[apitypes.Kind][]string {
	return map[apitypes.Kind][]string{
		apitypes.KindModule: {"rclone_password", "mlflow_password"},
		apitypes.KindTool:   {"rclone_password"},
	}
}

// defaultKindRoles lists, per kind, the service roles its template
// exposes, used to predict endpoint URLs without waiting for the job to
// place (spec §4.5 step 8).
func defaultKindRoles() map[apitypes.Kind][]string {
	return map[apitypes.Kind][]string{
		apitypes.KindModule:          {"api", "ide"},
		apitypes.KindTool:            {"api"},
		apitypes.KindFunctionService: {"api"},
	}
}
