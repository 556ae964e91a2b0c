package function_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/function"
	"github.com/ai4os/papi/pkg/registryclient"
)

func TestCreate_RejectsDisallowedImage(t *testing.T) {
	c := function.New(nil, registryclient.AllowList{"ai4os"})
	_, err := c.Create(context.Background(), "tok", apitypes.FunctionService{
		Name: "svc", VO: "ai4eosc.eu", Image: "evil/cryptominer:latest",
	})
	if err == nil || !apierrors.Is(err, apierrors.KindBadRequest) {
		t.Fatalf("got %v, want bad-request for a disallowed image", err)
	}
}

func TestCreate_RejectsUnknownVOCluster(t *testing.T) {
	c := function.New(map[string]function.Cluster{}, registryclient.AllowList{"ai4os"})
	_, err := c.Create(context.Background(), "tok", apitypes.FunctionService{
		Name: "svc", VO: "ai4eosc.eu", Image: "ai4os/module:latest",
	})
	if err == nil || !apierrors.Is(err, apierrors.KindBadRequest) {
		t.Fatalf("got %v, want bad-request for an unconfigured VO cluster", err)
	}
}

func TestCreate_PostsNativeServiceDefinition(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	clusters := map[string]function.Cluster{
		"ai4eosc.eu": {ClusterID: "cl1", Endpoint: srv.URL},
	}
	c := function.New(clusters, registryclient.AllowList{"ai4os"})

	url, err := c.Create(context.Background(), "mytoken", apitypes.FunctionService{
		Name: "svc", VO: "ai4eosc.eu", Image: "ai4os/module:latest",
		CPU: 1, MemoryMB: 512,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/system/services" {
		t.Fatalf("got path %q", gotPath)
	}
	if gotAuth != "Bearer mytoken" {
		t.Fatalf("got auth header %q", gotAuth)
	}
	if gotBody["name"] != "svc" || gotBody["image"] != "ai4os/module:latest" {
		t.Fatalf("got body %v", gotBody)
	}
	if url == "" {
		t.Fatalf("expected a non-empty service URL")
	}
}

func TestDelete_PropagatesBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	clusters := map[string]function.Cluster{"ai4eosc.eu": {ClusterID: "cl1", Endpoint: srv.URL}}
	c := function.New(clusters, registryclient.AllowList{"ai4os"})

	err := c.Delete(context.Background(), "tok", "ai4eosc.eu", "svc")
	if err == nil || !apierrors.Is(err, apierrors.KindBackendError) {
		t.Fatalf("got %v, want backend-error", err)
	}
}
