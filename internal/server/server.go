// Package server builds the "explicit Server value" every handler
// closes over: one struct holding a handle to every subsystem,
// constructed once at startup from a decoded config.Config and handed
// to cmd/papi's route wiring by reference. No package in this tree
// keeps package-level mutable state of its own; this is the single
// place PAPI's process-wide dependencies live, matching the teacher's
// own avoidance of globals in favor of explicit constructor wiring
// (cmd/knitd/main.go builds db/echo once and passes them to handler
// factories).
package server

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ai4os/papi/internal/authn"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/catalog"
	"github.com/ai4os/papi/pkg/config"
	"github.com/ai4os/papi/pkg/deployment"
	"github.com/ai4os/papi/pkg/function"
	"github.com/ai4os/papi/pkg/gitsource"
	"github.com/ai4os/papi/pkg/llm"
	"github.com/ai4os/papi/pkg/mailer"
	"github.com/ai4os/papi/pkg/quota"
	"github.com/ai4os/papi/pkg/registryclient"
	"github.com/ai4os/papi/pkg/scheduler"
	"github.com/ai4os/papi/pkg/secrets"
	"github.com/ai4os/papi/pkg/secretstore"
	"github.com/ai4os/papi/pkg/snapshot"
	"github.com/ai4os/papi/pkg/stats"
	"github.com/ai4os/papi/pkg/template"
	"github.com/ai4os/papi/pkg/tryme"
)

// Templates groups the raw job-template text every KindProfile and the
// snapshot orchestrator render against, read from disk once at startup
// (spec §3: "a job template (text with placeholders)").
type Templates struct {
	ByKind   map[apitypes.Kind]string
	Snapshot string
	TryMe    string
}

// Server holds every subsystem PAPI's HTTP handlers need. Fields are set
// once in New and never reassigned afterward; concurrency safety for
// any individual subsystem is that subsystem's own responsibility
// (Catalog's RWMutex, Stats' atomic snapshot, and so on).
type Server struct {
	Config *config.Config
	VOs    map[string]apitypes.VO
	Authn  *authn.Verifier

	Catalog    *catalog.Resolver
	Ledger     *quota.Ledger
	Secrets    *secrets.Broker
	Deployment *deployment.Controller
	TryMe      *tryme.Controller
	Snapshot   *snapshot.Orchestrator
	Function   *function.Controller
	Stats      *stats.Aggregator
	Historical *stats.HistoricalStore
	LLM        *llm.Controller
	Mailer     mailer.Mailer

	Scheduler scheduler.Scheduler
	Registry  registryclient.Registry
}

// Deps are the concrete backends New wires subsystems to, left as an
// explicit struct (rather than constructed inside New) so tests can
// substitute fakes for every one of them without touching New's wiring
// logic.
type Deps struct {
	Scheduler scheduler.Scheduler
	Registry  registryclient.Registry
	Secrets   secretstore.Store
	Mailer    mailer.Mailer
	Issuers   []*authn.Issuer

	CatalogSources []catalog.Source
	CatalogAllow   registryclient.AllowList
	CatalogLog     catalog.Logger

	Templates    Templates
	KindPriority map[apitypes.Kind]int
	KindSecrets  map[apitypes.Kind][]string
	KindRoles    map[apitypes.Kind][]string

	HarborRobotPassword string
	ProvenanceSecret    string
	FunctionClusters    map[string]function.Cluster
	LLMCatalog          []apitypes.LLMModel
	LLMGateway          *llm.Gateway
	AccountingPath      string

	IDGen func() string
}

// gitFetcher adapts gitsource.Fetch's concrete *Tree return to the
// interface-typed catalog.Fetcher signature.
func gitFetcher(ctx context.Context, url, branch string) (catalog.Tree, error) {
	return gitsource.Fetch(ctx, url, branch)
}

// New wires every subsystem against cfg and deps into one Server value.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	vos := cfg.VOTable()

	cat := catalog.New(deps.CatalogSources, deps.CatalogAllow, gitFetcher, deps.CatalogLog)
	ledger := quota.New(deps.Scheduler, cfg.CapTables)
	secretsBroker := secrets.New(deps.Secrets, vos)

	profiles := make(map[apitypes.Kind]deployment.KindProfile, len(deps.Templates.ByKind))
	for kind, tpl := range deps.Templates.ByKind {
		profiles[kind] = deployment.KindProfile{
			Template: template.Tokenize(tpl),
			Priority: deps.KindPriority[kind],
			Secrets:  deps.KindSecrets[kind],
			Roles:    deps.KindRoles[kind],
		}
	}
	if deps.Templates.TryMe != "" {
		profiles[apitypes.KindTryMe] = deployment.KindProfile{
			Template: template.Tokenize(deps.Templates.TryMe),
			Priority: deps.KindPriority[apitypes.KindTryMe],
			Roles:    deps.KindRoles[apitypes.KindTryMe],
		}
	}

	idgen := deps.IDGen
	if idgen == nil {
		idgen = newUUID
	}

	depCtl := deployment.New(cat, ledger, secretsBroker, deps.Scheduler, vos, profiles, deps.CatalogAllow, idgen)

	tryMeCtl := tryme.New(
		depCtl, deps.Scheduler,
		cfg.TryMe.VO, cfg.Nomad.Namespaces[cfg.TryMe.VO],
		cfg.TryMe.PerUserLimit, cfg.TryMe.PerVOLimit,
	)

	snap := snapshot.New(deps.Scheduler, deps.Registry, deps.Templates.Snapshot, deps.HarborRobotPassword, deps.ProvenanceSecret, vos)

	fnCtl := function.New(deps.FunctionClusters, deps.CatalogAllow)

	namespaceByVO := make(map[string]string, len(vos))
	for name, v := range vos {
		namespaceByVO[name] = v.Namespace
	}
	statsAgg := stats.New(deps.Scheduler, namespaceByVO)

	llmCtl := llm.New(deps.LLMCatalog, deps.LLMGateway)

	var historical *stats.HistoricalStore
	if deps.AccountingPath != "" {
		historical = stats.NewHistoricalStore(deps.AccountingPath)
	}

	allowedVOs := cfg.Auth.VO
	verifier := authn.NewVerifier(deps.Issuers, allowedVOs).WithAdminEntitlement(cfg.Auth.AdminEntitlement)

	m := deps.Mailer
	if m == nil {
		m = mailer.Noop{}
	}

	return &Server{
		Config:     cfg,
		VOs:        vos,
		Authn:      verifier,
		Catalog:    cat,
		Ledger:     ledger,
		Secrets:    secretsBroker,
		Deployment: depCtl,
		TryMe:      tryMeCtl,
		Snapshot:   snap,
		Function:   fnCtl,
		Stats:      statsAgg,
		Historical: historical,
		LLM:        llmCtl,
		Mailer:     m,
		Scheduler:  deps.Scheduler,
		Registry:   deps.Registry,
	}, nil
}

// RunBackground starts the two background tasks spec §5 names: the
// stats poller and the hourly catalog refresh. It blocks until ctx is
// cancelled, intended to be called from its own goroutine at startup.
func (s *Server) RunBackground(ctx context.Context) {
	go func() {
		if err := s.Stats.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("server: stats aggregator stopped: %v", err)
		}
	}()

	go func() {
		ticker := hourlyTicker(ctx)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Catalog.Refresh("", "")
			}
		}
	}()
}

func newUUID() string {
	return uuid.New().String()
}

// hourlyTicker is a thin seam over time.NewTicker so the background
// catalog-refresh cadence (spec §5: "the catalog periodic refresh
// (hourly)") is expressed in one place.
func hourlyTicker(ctx context.Context) *time.Ticker {
	_ = ctx
	return time.NewTicker(time.Hour)
}
