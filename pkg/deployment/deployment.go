// Package deployment implements C5, the deployment controller: the
// create/list/get/delete surface that ties together C1 (catalog), C2
// (quota), C3 (template render) and C4 (secrets) and talks to the
// Scheduler on their behalf (spec §4.5).
package deployment

import (
	"context"
	"fmt"
	"sort"

	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/catalog"
	"github.com/ai4os/papi/pkg/quota"
	"github.com/ai4os/papi/pkg/registryclient"
	"github.com/ai4os/papi/pkg/scheduler"
	"github.com/ai4os/papi/pkg/secrets"
	"github.com/ai4os/papi/pkg/template"
)

// KindProfile is the per-kind configuration the controller needs beyond
// what the catalog already knows: the job template, its priority band,
// which secret names it depends on, and which service roles its
// template exposes (used to predict endpoint URLs without waiting for
// the job to place, per spec §4.5 step 8).
type KindProfile struct {
	Template []template.Fragment
	Priority int
	Secrets  []string // secret names resolved from C4 at "deployments/<uuid>/<name>"
	Roles    []string // e.g. ["api"], ["ide"]
}

type Controller struct {
	catalog  *catalog.Resolver
	ledger   *quota.Ledger
	secrets  *secrets.Broker
	sched    scheduler.Scheduler
	vos      map[string]apitypes.VO
	profiles map[apitypes.Kind]KindProfile
	allow    registryclient.AllowList
	idgen    func() string
}

func New(
	cat *catalog.Resolver,
	ledger *quota.Ledger,
	secretsBroker *secrets.Broker,
	sched scheduler.Scheduler,
	vos map[string]apitypes.VO,
	profiles map[apitypes.Kind]KindProfile,
	allow registryclient.AllowList,
	idgen func() string,
) *Controller {
	return &Controller{
		catalog: cat, ledger: ledger, secrets: secretsBroker, sched: sched,
		vos: vos, profiles: profiles, allow: allow, idgen: idgen,
	}
}

type CreateInput struct {
	Subject    string
	OwnerName  string
	OwnerEmail string
	VO         string
	Kind       apitypes.Kind
	Name       string
	Title      string
	Hostname   string
	Config     apitypes.UserConfig
	Resources  apitypes.Resources
	DockerTag  string // optional user override of the catalog image's tag
	IDEPassword string

	// MaxWallTimeSeconds, when nonzero, renders as the MAX_WALL_TIME
	// system placeholder so a template can enforce a hard runtime cap at
	// the Scheduler level (spec §4.7's try-me 10-minute wall-time cap;
	// ordinary kinds leave this at zero and the template omits the
	// placeholder).
	MaxWallTimeSeconds int
}

// Create runs the eight-step protocol from spec §4.5.
func (c *Controller) Create(ctx context.Context, in CreateInput) (*apitypes.CreateResponse, error) {
	v, ok := c.vos[in.VO]
	if !ok {
		return nil, apierrors.BadRequest("unknown VO: " + in.VO)
	}
	profile, ok := c.profiles[in.Kind]
	if !ok {
		return nil, apierrors.BadRequest("unsupported kind: " + string(in.Kind))
	}

	// Step 1: resolve against the catalog.
	item, err := c.catalog.Metadata(ctx, in.Kind, in.Name)
	if err != nil {
		return nil, err
	}

	// Step 2: validate.
	if err := c.validate(item, in); err != nil {
		return nil, err
	}
	schema, err := c.catalog.ConfigTemplate(ctx, in.Kind, in.Name)
	if err != nil {
		return nil, err
	}
	if err := validateAgainstSchema(*schema, in.Config); err != nil {
		return nil, err
	}

	// Step 3: docker-image allow-list, only relevant when the catalog
	// item's image can be overridden by config.General.
	image := item.DockerImage
	if ov, ok := in.Config.General["docker_image"].(string); ok && ov != "" {
		image = ov
		parsed, err := registryclient.ParseImage(image)
		if err != nil {
			return nil, apierrors.BadRequest("invalid docker_image: " + err.Error())
		}
		if !c.allow.Allows(parsed.Repository) {
			return nil, apierrors.BadRequest("docker image is not in the allow-list")
		}
	}

	// Step 4: admission.
	if err := c.ledger.CheckErr(ctx, in.Subject, in.VO, v.Namespace, in.Resources); err != nil {
		return nil, err
	}

	// Step 5+6: build the substitution map, fetch secrets, render.
	jobUUID := c.idgen()
	hostname := in.Hostname
	if hostname == "" {
		hostname = jobUUID
	}

	vars := template.NewBuilder().
		SetSystem("JOB_UUID", jobUUID).
		SetSystem("HOSTNAME", hostname).
		SetSystem("NAMESPACE", v.Namespace).
		SetSystem("BASE_DOMAIN", v.Domain).
		SetSystem("OWNER", in.Subject).
		SetSystem("OWNER_NAME", in.OwnerName).
		SetSystem("OWNER_EMAIL", in.OwnerEmail).
		SetSystem("TITLE", in.Title).
		SetSystem("PRIORITY", fmt.Sprintf("%d", profile.Priority)).
		SetSystem("SHARED_MEMORY", fmt.Sprintf("%d", in.Resources.MemoryMB/2)).
		SetSystem("DOCKER_IMAGE", image).
		SetSystem("GPU_MODELNAME", gpuModelOrSentinel(in.Resources.GPUModel))

	if in.MaxWallTimeSeconds > 0 {
		vars.SetSystem("MAX_WALL_TIME", fmt.Sprintf("%d", in.MaxWallTimeSeconds))
	}

	for _, name := range profile.Secrets {
		entry, err := c.secrets.Get(ctx, in.Subject, in.VO, "deployments/"+jobUUID+"/"+name)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			vars.SetUser(secretVarName(name), entry.Value["value"])
		}
	}

	rendered, err := template.Render(profile.Template, vars.Map())
	if err != nil {
		return nil, apierrors.BadRequest(err.Error())
	}

	// Step 7: submit.
	schedID, err := c.sched.Submit(ctx, v.Namespace, rendered)
	if err != nil {
		return nil, apierrors.BackendError(err.Error(), err)
	}
	_ = schedID // the Scheduler is authoritative; PAPI always requests jobUUID as the ID

	// Step 8: predicted endpoints, without waiting for the job to run.
	endpoints := predictEndpoints(profile.Roles, hostname, v.Domain)

	return &apitypes.CreateResponse{UUID: jobUUID, Endpoints: endpoints}, nil
}

func secretVarName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			out = append(out, r-32)
		case r == '-':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

func gpuModelOrSentinel(model string) string {
	if model == "" {
		return "ANY"
	}
	return model
}

func predictEndpoints(roles []string, hostname, domain string) map[string]string {
	out := map[string]string{}
	for _, role := range roles {
		out[role] = fmt.Sprintf("https://%s-%s.%s", role, hostname, domain)
	}
	return out
}

// validateAgainstSchema walks every section of a catalog item's config
// schema and checks the caller's submitted values against each param's
// range/options (spec §4.3 step 2), plus presence for params that carry
// no default (Value == nil is this build's definition of "required",
// since the schema carries no explicit required flag). A submitted
// param absent from the schema is left alone — PAPI doesn't reject
// extra fields, only malformed recognized ones.
func validateAgainstSchema(schema apitypes.ConfigSchema, cfg apitypes.UserConfig) error {
	if err := validateSection("general", schema.General, cfg.General); err != nil {
		return err
	}
	if err := validateSection("hardware", schema.Hardware, cfg.Hardware); err != nil {
		return err
	}
	if err := validateSection("storage", schema.Storage, cfg.Storage); err != nil {
		return err
	}
	for section, params := range schema.Extra {
		if err := validateSection(section, params, cfg.Extra[section]); err != nil {
			return err
		}
	}
	return nil
}

func validateSection(section string, params map[string]apitypes.Param, values map[string]any) error {
	for name, param := range params {
		field := section + "." + name
		value, present := values[name]
		if !present {
			if param.Value == nil {
				return apierrors.BadRequest(field+" is required", apierrors.WithField(field))
			}
			continue
		}
		if len(param.Options) > 0 {
			if err := template.ValidateOptions(field, value, param.Options); err != nil {
				return apierrors.BadRequest(err.Error(), apierrors.WithField(field))
			}
		}
		if len(param.Range) == 2 {
			num, ok := toFloat(value)
			if !ok {
				return apierrors.BadRequest(field+" must be numeric", apierrors.WithField(field))
			}
			if err := template.ValidateRange(field, num, [2]float64{param.Range[0], param.Range[1]}); err != nil {
				return apierrors.BadRequest(err.Error(), apierrors.WithField(field))
			}
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// validate enforces spec §4.3 step 2's field rules plus required-field
// presence against the catalog item's config schema.
func (c *Controller) validate(item *apitypes.CatalogItem, in CreateInput) error {
	if err := template.ValidateTitle(in.Title); err != nil {
		return apierrors.BadRequest(err.Error(), apierrors.WithField(err.(*template.ValidationError).Field))
	}
	if err := template.ValidateIDEPassword(in.IDEPassword); err != nil {
		return apierrors.BadRequest(err.Error(), apierrors.WithField(err.(*template.ValidationError).Field))
	}
	if err := template.ValidateHostname(in.Hostname); err != nil {
		return apierrors.BadRequest(err.Error(), apierrors.WithField(err.(*template.ValidationError).Field))
	}
	return nil
}

// List returns every live deployment the caller owns in a VO, optionally
// narrowed to a set of kinds.
func (c *Controller) List(ctx context.Context, subject, vo string, kinds []apitypes.Kind) ([]apitypes.Deployment, error) {
	v, ok := c.vos[vo]
	if !ok {
		return nil, apierrors.BadRequest("unknown VO: " + vo)
	}
	jobs, err := c.sched.ListJobs(ctx, scheduler.FilterOpt{Namespace: v.Namespace, Owner: subject})
	if err != nil {
		return nil, apierrors.BackendError("failed to list deployments", err)
	}

	wantKind := func(apitypes.Kind) bool { return true }
	if len(kinds) > 0 {
		set := map[apitypes.Kind]bool{}
		for _, k := range kinds {
			set[k] = true
		}
		wantKind = func(k apitypes.Kind) bool { return set[k] }
	}

	out := make([]apitypes.Deployment, 0, len(jobs))
	for i := range jobs {
		j := &jobs[i]
		kind := kindOfJob(j)
		if !wantKind(kind) {
			continue
		}
		out = append(out, c.project(j, vo, kind))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmitTime.Before(out[j].SubmitTime) })
	return out, nil
}

func (c *Controller) Get(ctx context.Context, subject, vo, uuid string) (*apitypes.Deployment, error) {
	v, ok := c.vos[vo]
	if !ok {
		return nil, apierrors.BadRequest("unknown VO: " + vo)
	}
	job, err := c.sched.GetJob(ctx, v.Namespace, uuid)
	if err != nil {
		return nil, apierrors.BackendError("failed to fetch deployment", err)
	}
	if job == nil {
		return nil, apierrors.UnknownWorkload("deployment", uuid)
	}
	if job.Owner != subject {
		return nil, apierrors.Forbidden("you do not own this deployment")
	}
	d := c.project(job, vo, kindOfJob(job))
	return &d, nil
}

func (c *Controller) Delete(ctx context.Context, subject, vo, uuid string) error {
	v, ok := c.vos[vo]
	if !ok {
		return apierrors.BadRequest("unknown VO: " + vo)
	}
	job, err := c.sched.GetJob(ctx, v.Namespace, uuid)
	if err != nil {
		return apierrors.BackendError("failed to fetch deployment", err)
	}
	if job == nil {
		return apierrors.UnknownWorkload("deployment", uuid)
	}
	if job.Owner != subject {
		return apierrors.Forbidden("you do not own this deployment")
	}
	if err := c.sched.Purge(ctx, v.Namespace, uuid, true); err != nil {
		return apierrors.BackendError(err.Error(), err)
	}
	return nil
}

// kindOfJob recovers the workload kind PAPI embedded in the job name at
// submit time ("<kind>-<uuid>", matching the teacher's Nomad job-naming
// convention of a type prefix followed by an identifier).
func kindOfJob(j *scheduler.Job) apitypes.Kind {
	for _, k := range apitypes.AllKinds {
		if len(j.Name) > len(string(k)) && j.Name[:len(k)] == string(k) {
			return k
		}
	}
	return apitypes.KindModule
}

func (c *Controller) project(job *scheduler.Job, vo string, kind apitypes.Kind) apitypes.Deployment {
	status, errMsg := deriveStatus(job, kind)
	profile := c.profiles[kind]
	// HOSTNAME defaults to JOB_UUID at create time (spec §4.3 step 3) and
	// PAPI stores neither value, so the job's own Scheduler ID doubles as
	// the hostname for endpoint recomputation on every read.
	hostname := job.ID
	domain := ""
	if v, ok := c.vos[vo]; ok {
		domain = v.Domain
	}
	return apitypes.Deployment{
		UUID:         job.ID,
		Owner:        job.Owner,
		VO:           vo,
		Kind:         kind,
		Name:         job.Name,
		SubmitTime:   job.SubmitTime,
		Status:       status,
		Endpoints:    predictEndpoints(profile.Roles, hostname, domain),
		Resources:    job.Requested,
		ErrorMessage: errMsg,
	}
}
