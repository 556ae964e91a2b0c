// Package llm implements C10: a static model catalog plus an
// authenticated, streaming passthrough to an upstream LLM gateway.
// Grounded on original_source/ai4papi/routers/v1/proxies/ai4_llm.py,
// which authenticates the caller and then forwards to an OpenAI-
// compatible gateway with a server-side API key, streaming the
// chat-completion chunks back unchanged; this package replaces the
// openai SDK client with echoutil's reverse-proxy helper since the
// gateway's request/response bodies are forwarded as-is, never
// deserialized by PAPI.
package llm

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/echoutil"
)

// Gateway is the upstream OpenAI-compatible LLM endpoint PAPI proxies
// chat completions to, authenticated with a server-side key (the
// source's LLM_API_KEY environment variable).
type Gateway struct {
	baseURL string
	apiKey  string
}

func NewGateway(baseURL, apiKey string) *Gateway {
	return &Gateway{baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey}
}

// Controller serves the static catalog and proxies chat completions.
type Controller struct {
	catalog []apitypes.LLMModel
	gateway *Gateway
}

func New(catalog []apitypes.LLMModel, gateway *Gateway) *Controller {
	return &Controller{catalog: catalog, gateway: gateway}
}

// Catalog returns the static model listing (spec §4.10).
func (c *Controller) Catalog() []apitypes.LLMModel {
	out := make([]apitypes.LLMModel, len(c.catalog))
	copy(out, c.catalog)
	return out
}

// ModelByName finds one catalog entry, used to validate a chat request's
// model field and to look up RequiresGatedToken before proxying.
func (c *Controller) ModelByName(name string) (apitypes.LLMModel, bool) {
	for _, m := range c.catalog {
		if m.Name == name {
			return m, true
		}
	}
	return apitypes.LLMModel{}, false
}

// Proxy forwards the current chat-completion request to the upstream
// gateway, streaming the response back unchanged. The caller's own
// Authorization header is replaced with the server-side gateway key:
// PAPI's own bearer token authenticates the caller to PAPI, not to the
// LLM gateway (spec §4.10: "forwards to an upstream LLM gateway using a
// server-side API key").
func (c *Controller) Proxy(ctx echo.Context, model string) error {
	if c.gateway == nil || c.gateway.apiKey == "" {
		return apierrors.New(apierrors.KindInternal, "LLM gateway is not configured")
	}
	if _, ok := c.ModelByName(model); !ok {
		return apierrors.BadRequest("unknown model: " + model)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.gateway.apiKey)

	if err := echoutil.Proxy(ctx, c.gateway.baseURL+"/chat/completions", headers); err != nil {
		return apierrors.BackendError("LLM gateway request failed", err)
	}
	return nil
}
