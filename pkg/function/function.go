// Package function implements C8, the function service controller: a
// thin wrapper over the external Function Platform (spec calls it OSCAR-
// shaped; original_source/ai4papi/routers/v1/inference/oscar.py talks to
// it via oscar_python.client.Client). PAPI translates FunctionService's
// declarative shape into the platform's native service-definition JSON,
// injects the same provenance metadata and docker-image allow-list as
// every other workload kind, and routes by VO to the right cluster
// endpoint (spec §4.8).
package function

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/registryclient"
)

// Cluster is one VO's routed Function Platform endpoint (spec §4.8:
// "Cross-cluster routing chooses the inference endpoint by VO").
type Cluster struct {
	ClusterID string
	Endpoint  string
}

// nativeService is the Function Platform's own service-definition shape,
// modeled on oscar.py's make_service_definition / Service body.
type nativeService struct {
	Name         string            `json:"name"`
	Memory       string            `json:"memory"`
	CPU          string            `json:"cpu"`
	Image        string            `json:"image"`
	Script       string            `json:"script"`
	AllowedUsers []string          `json:"allowed_users,omitempty"`
	Environment  map[string]envVar `json:"environment,omitempty"`
	Input        []bucketIO        `json:"input,omitempty"`
	Output       []bucketIO        `json:"output,omitempty"`
	VO           string            `json:"vo"`
}

type envVar struct {
	Variables map[string]string `json:"Variables"`
}

type bucketIO struct {
	StorageProvider string `json:"storage_provider"`
	Path            string `json:"path"`
}

// Controller wraps the Function Platform's HTTP surface behind the
// operations spec §4.8 names: list, create, update, delete, logs.
type Controller struct {
	clusters map[string]Cluster
	allow    registryclient.AllowList
	client   *http.Client
}

func New(clusters map[string]Cluster, allow registryclient.AllowList) *Controller {
	return &Controller{clusters: clusters, allow: allow, client: &http.Client{Timeout: 15 * time.Second}}
}

func (c *Controller) clusterFor(vo string) (Cluster, error) {
	cl, ok := c.clusters[vo]
	if !ok {
		return Cluster{}, apierrors.BadRequest("no function platform cluster configured for VO: " + vo)
	}
	return cl, nil
}

func toNative(svc apitypes.FunctionService) nativeService {
	env := map[string]envVar{}
	if len(svc.Env) > 0 {
		env["Variables"] = envVar{Variables: svc.Env}
	}
	var in, out []bucketIO
	if svc.InputBucket != "" {
		in = append(in, bucketIO{StorageProvider: "minio", Path: svc.InputBucket})
	}
	if svc.OutputBucket != "" {
		out = append(out, bucketIO{StorageProvider: "minio", Path: svc.OutputBucket})
	}
	return nativeService{
		Name:         svc.Name,
		Memory:       fmt.Sprintf("%dMi", svc.MemoryMB),
		CPU:          fmt.Sprintf("%g", svc.CPU),
		Image:        svc.Image,
		Script:       svc.Script,
		AllowedUsers: svc.AllowedUsers,
		Environment:  env,
		Input:        in,
		Output:       out,
		VO:           svc.VO,
	}
}

// validateImage enforces the same docker-image allow-list every other
// workload kind is subject to (spec §4.8: "passes through the same
// docker-image allow-list").
func (c *Controller) validateImage(image string) error {
	parsed, err := registryclient.ParseImage(image)
	if err != nil {
		return apierrors.BadRequest("invalid image: " + err.Error())
	}
	if !c.allow.Allows(parsed.Repository) {
		return apierrors.BadRequest("docker image is not in the allow-list")
	}
	return nil
}

func (c *Controller) do(ctx context.Context, token, method, endpoint, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, apierrors.Internal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint+path, reader)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierrors.Timeout("function platform request timed out", err)
		}
		return nil, apierrors.BackendError(err.Error(), err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierrors.BackendError("failed to read function platform response", err)
	}
	if resp.StatusCode >= 300 {
		return nil, apierrors.BackendError(string(raw), fmt.Errorf("function platform: status %d", resp.StatusCode))
	}
	return raw, nil
}

// Create registers a new service, returning its reachable URL.
func (c *Controller) Create(ctx context.Context, token string, svc apitypes.FunctionService) (string, error) {
	if err := c.validateImage(svc.Image); err != nil {
		return "", err
	}
	cl, err := c.clusterFor(svc.VO)
	if err != nil {
		return "", err
	}
	if _, err := c.do(ctx, token, http.MethodPost, cl.Endpoint, "/system/services", toNative(svc)); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/services/%s/%s", cl.Endpoint, cl.ClusterID, svc.Name), nil
}

// Update replaces an existing service's definition in place.
func (c *Controller) Update(ctx context.Context, token string, svc apitypes.FunctionService) (string, error) {
	if err := c.validateImage(svc.Image); err != nil {
		return "", err
	}
	cl, err := c.clusterFor(svc.VO)
	if err != nil {
		return "", err
	}
	if _, err := c.do(ctx, token, http.MethodPut, cl.Endpoint, "/system/services/"+svc.Name, toNative(svc)); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/services/%s/%s", cl.Endpoint, cl.ClusterID, svc.Name), nil
}

func (c *Controller) Delete(ctx context.Context, token, vo, name string) error {
	cl, err := c.clusterFor(vo)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, token, http.MethodDelete, cl.Endpoint, "/system/services/"+name, nil)
	return err
}

// List returns the raw service listing from the Function Platform for
// the caller's VO, left undecoded since the platform's full service
// shape is richer than apitypes.FunctionService and PAPI passes it
// through rather than re-modeling it (spec §4.8 names "list" as an
// operation but does not ask PAPI to normalize the shape).
func (c *Controller) List(ctx context.Context, token, vo string) (json.RawMessage, error) {
	cl, err := c.clusterFor(vo)
	if err != nil {
		return nil, err
	}
	raw, err := c.do(ctx, token, http.MethodGet, cl.Endpoint, "/system/services", nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// Logs returns the raw log stream for one service's jobs.
func (c *Controller) Logs(ctx context.Context, token, vo, name string) (json.RawMessage, error) {
	cl, err := c.clusterFor(vo)
	if err != nil {
		return nil, err
	}
	raw, err := c.do(ctx, token, http.MethodGet, cl.Endpoint, "/system/logs/"+name, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
