// Package config loads PAPI's main YAML configuration into one immutable
// value at startup, modeled on the teacher's pkg/configs/frontend and
// pkg/configs/backend (plain struct + gopkg.in/yaml.v3, no hidden
// mutation after load). This is the "explicit Server value" half of the
// spec's Design Notes: child subsystems hold a reference to the decoded
// Config, never to package-level state, and tests construct their own.
package config

import (
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/ai4os/papi/pkg/apitypes"
)

// OIDCIssuer is one entry of auth.OP: an OpenID Connect provider PAPI
// accepts bearer tokens from.
type OIDCIssuer struct {
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// OSCARCluster is one entry of oscar.clusters: a Function Platform
// deployment reachable for a given cluster id.
type OSCARCluster struct {
	Endpoint  string `yaml:"endpoint"`
	ClusterID string `yaml:"cluster_id"`
}

// Auth groups the auth.* keys from spec §6.
type Auth struct {
	CORSOrigins      []string     `yaml:"CORS_origins"`
	OP               []OIDCIssuer `yaml:"OP"`
	VO               []string     `yaml:"VO"`
	AdminEntitlement string       `yaml:"admin_entitlement"`
}

// Self groups the self.* keys.
type Self struct {
	Domain string `yaml:"domain"`
}

// rawVO is the on-disk shape of one VO's entries across nomad.namespaces,
// lb.domain, oscar.clusters and mlflow, which the source keys by VO
// independently; Config.VOs folds them into one apitypes.VO per name.
type rawVO struct {
	Namespace string `yaml:"namespace"`
	Domain    string `yaml:"domain"`
	Cluster   OSCARCluster `yaml:"cluster"`
	MLflow    string `yaml:"mlflow"`
}

// Config is PAPI's whole startup configuration, decoded once in main and
// passed by value/reference to every subsystem constructor.
type Config struct {
	Self  Self            `yaml:"self"`
	Auth  Auth            `yaml:"auth"`
	Nomad struct {
		Namespaces map[string]string `yaml:"namespaces"`
	} `yaml:"nomad"`
	LB struct {
		Domain map[string]string `yaml:"domain"`
	} `yaml:"lb"`
	OSCAR struct {
		Clusters map[string]OSCARCluster `yaml:"clusters"`
	} `yaml:"oscar"`
	MLflow map[string]string `yaml:"mlflow"`

	SecretRoot string `yaml:"secret_root"`

	CapTables map[string]apitypes.CapTable `yaml:"quotas"`

	TryMe struct {
		VO           string `yaml:"vo"`
		PerUserLimit int    `yaml:"per_user_limit"`
		PerVOLimit   int    `yaml:"per_vo_limit"`
	} `yaml:"try_me"`

	// CatalogSources lists the git-backed module indexes C1 ingests
	// (spec §4.1: "one or more configured upstream catalog repos").
	CatalogSources []CatalogSourceConfig `yaml:"catalog_sources"`

	// CatalogAllow is the docker-image allow-list prefixes shared by
	// the catalog resolver, the deployment controller's override check
	// and the function-service controller (spec §3).
	CatalogAllow []string `yaml:"catalog_allow"`

	// Templates points at the on-disk job-template files for each kind,
	// plus the snapshot batch-job and try-me templates.
	Templates struct {
		ByKind   map[apitypes.Kind]string `yaml:"by_kind"`
		Snapshot string                   `yaml:"snapshot"`
		TryMe    string                   `yaml:"try_me"`
	} `yaml:"templates"`

	Harbor struct {
		BaseURL  string `yaml:"base_url"`
		Username string `yaml:"username"`
	} `yaml:"harbor"`

	LLM struct {
		GatewayURL string            `yaml:"gateway_url"`
		Catalog    []apitypes.LLMModel `yaml:"catalog"`
	} `yaml:"llm"`

	AccountingPath string `yaml:"accounting_path"`

	SMTP struct {
		Addr string `yaml:"addr"`
		From string `yaml:"from"`
		User string `yaml:"user"`
	} `yaml:"smtp"`
}

// CatalogSourceConfig is one entry of catalog_sources: a single
// upstream module index for one workload kind.
type CatalogSourceConfig struct {
	Kind           apitypes.Kind `yaml:"kind"`
	URL            string        `yaml:"url"`
	Branch         string        `yaml:"branch"`
	ModuleListPath string        `yaml:"module_list_path"`
}

// Load reads path, expands it against the process environment the way
// the spec's main.yaml is envsubst'ed at startup, and decodes it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Unmarshal(ExpandEnv(string(raw)))
}

// ExpandEnv performs the envsubst step called out in spec §6: every
// ${VAR} (or $VAR) in the template is replaced with the value of the
// matching process environment variable, using stdlib os.Expand. No pack
// library does templated env substitution over a whole config file, and
// the transform is a few lines around os.Expand; pulling in a
// third-party templating engine for this would be pure ceremony, so this
// one corner of the ambient stack is a documented stdlib exception (see
// DESIGN.md).
func ExpandEnv(tpl string) string {
	return os.Expand(tpl, os.Getenv)
}

func Unmarshal(expanded string) (*Config, error) {
	var raw struct {
		Config `yaml:",inline"`
		VOs    map[string]rawVO `yaml:"vo"`
	}
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	cfg := raw.Config
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Self.Domain == "" {
		return fmt.Errorf("config: self.domain is required")
	}
	if len(c.Auth.OP) == 0 {
		return fmt.Errorf("config: auth.OP must list at least one OIDC issuer")
	}
	if len(c.Auth.VO) == 0 {
		return fmt.Errorf("config: auth.VO must list at least one allow-listed VO")
	}
	return nil
}

// VOTable builds the process-wide read-only VO -> {namespace, domain,
// inference-endpoint, mlflow-uri, secret-root} mapping from spec §3,
// folding together the independently-keyed nomad.namespaces, lb.domain,
// oscar.clusters and mlflow sections. secret_root is one flat top-level
// key, not VO-keyed, so each VO's SecretRoot is the VO's own subtree
// under it (spec §4.4's literal path shape is
// "/<secret-root>/<VO>/users/<user-subject>/" — the VO name has to be
// part of the stored root, or every VO would share one secret subtree).
func (c *Config) VOTable() map[string]apitypes.VO {
	out := make(map[string]apitypes.VO, len(c.Auth.VO))
	for _, name := range c.Auth.VO {
		cluster := c.OSCAR.Clusters[name]
		out[name] = apitypes.VO{
			Name:             name,
			Namespace:        c.Nomad.Namespaces[name],
			Domain:           c.LB.Domain[name],
			InferenceCluster: cluster.ClusterID,
			InferenceURL:     cluster.Endpoint,
			MLflowURI:        c.MLflow[name],
			SecretRoot:       path.Join(c.SecretRoot, name),
		}
	}
	return out
}

// IsProd reports the spec §6 IS_PROD switch: "When IS_PROD=False,
// dev-mode relaxations are enabled (missing secrets not fatal, some
// external probes skipped)." Read directly from the environment rather
// than the YAML file, matching the spec's own env-var framing.
func IsProd() bool {
	v := os.Getenv("IS_PROD")
	return v != "False" && v != "false" && v != "0"
}
