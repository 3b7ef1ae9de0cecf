// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package provider resolves which upstream Chat Completions endpoint a
// request targets and which credentials to use for it.
package provider

import (
	"net/http"
	"os"
	"strings"

	"github.com/masaic-ai/open-responses/internal/apierror"
)

// HeaderModelProvider is the optional request header naming the provider.
const HeaderModelProvider = "x-model-provider"

// defaultBaseURL is used when no provider can be derived from the request.
const defaultBaseURL = "https://api.openai.com/v1"

// baseURLs maps the recognised provider names to their OpenAI-compatible
// chat completions base URLs.
var baseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"anthropic":  "https://api.anthropic.com/v1",
	"claude":     "https://api.anthropic.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"togetherai": "https://api.together.xyz/v1",
	"cohere":     "https://api.cohere.ai/compatibility/v1",
}

// envKeys maps provider names to the environment variable consulted when the
// request carries no Authorization header.
var envKeys = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"claude":     "ANTHROPIC_API_KEY",
	"groq":       "GROQ_API_KEY",
	"togetherai": "TOGETHER_API_KEY",
	"cohere":     "COHERE_API_KEY",
}

// Endpoint is a resolved upstream target.
type Endpoint struct {
	// BaseURL is the upstream API root, e.g. "https://api.openai.com/v1".
	BaseURL string
	// Name is the low-cardinality provider tag used in telemetry.
	Name string
	// Model is the model name with any provider prefix stripped.
	Model string
	// APIKey is the bearer credential to present upstream.
	APIKey string
}

// Router derives upstream endpoints from request headers and model names.
type Router struct {
	// DefaultBaseURL overrides the built-in default upstream when set
	// (MODEL_BASE_URL).
	DefaultBaseURL string
	// lookupEnv is swapped in tests.
	lookupEnv func(string) (string, bool)
}

// NewRouter creates a Router with the given default base URL override.
func NewRouter(defaultBaseURL string) *Router {
	return &Router{DefaultBaseURL: defaultBaseURL, lookupEnv: os.LookupEnv}
}

// Resolve derives the upstream endpoint for the given model name and request
// headers. Priority order: provider@model prefix, URL@model prefix,
// x-model-provider header, default.
//
// Credentials come from the Authorization header; provider environment keys
// are consulted only when the header is absent. Missing credentials fail
// with invalid_configuration.
func (r *Router) Resolve(model string, headers http.Header) (*Endpoint, error) {
	ep := &Endpoint{Model: model}

	switch {
	case strings.HasPrefix(model, "http://"), strings.HasPrefix(model, "https://"):
		// Full URL prefix: http(s)://host/path@model.
		at := strings.LastIndex(model, "@")
		if at == -1 {
			return nil, apierror.New(apierror.KindInvalidRequest, "model %q has a URL prefix but no @model suffix", model).WithParam("model")
		}
		ep.BaseURL = strings.TrimSuffix(model[:at], "/")
		ep.Model = model[at+1:]
		ep.Name = hostTag(ep.BaseURL)
	case strings.Contains(model, "@"):
		// provider@model prefix.
		at := strings.Index(model, "@")
		name := strings.ToLower(model[:at])
		ep.Model = model[at+1:]
		if url, ok := baseURLs[name]; ok {
			ep.BaseURL = url
			ep.Name = canonicalName(name)
		} else {
			// Unknown provider names fall through to the default.
			ep.BaseURL = r.defaultURL()
			ep.Name = "openai"
		}
	default:
		if name := strings.ToLower(headers.Get(HeaderModelProvider)); name != "" {
			if url, ok := baseURLs[name]; ok {
				ep.BaseURL = url
				ep.Name = canonicalName(name)
				break
			}
		}
		ep.BaseURL = r.defaultURL()
		ep.Name = "openai"
	}

	if ep.Model == "" {
		return nil, apierror.New(apierror.KindInvalidRequest, "model name is empty").WithParam("model")
	}

	key, err := r.credentials(headers, ep.Name)
	if err != nil {
		return nil, err
	}
	ep.APIKey = key
	return ep, nil
}

func (r *Router) defaultURL() string {
	if r.DefaultBaseURL != "" {
		return strings.TrimSuffix(r.DefaultBaseURL, "/")
	}
	return defaultBaseURL
}

// credentials extracts the bearer token from the Authorization header, or
// falls back to the provider-specific environment key.
func (r *Router) credentials(headers http.Header, providerName string) (string, error) {
	if auth := headers.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token, nil
		}
		if token, ok := strings.CutPrefix(auth, "bearer "); ok {
			return token, nil
		}
		return "", apierror.New(apierror.KindInvalidConfiguration, "authorization header is not a bearer token")
	}
	if envKey, ok := envKeys[providerName]; ok {
		if v, found := r.lookupEnv(envKey); found && v != "" {
			return v, nil
		}
	}
	return "", apierror.New(apierror.KindInvalidConfiguration, "missing api key: set the Authorization header or the provider api key environment variable")
}

// ResolveList derives the endpoint for model listing, which carries no model
// name: the x-model-provider header or the default upstream decides.
func (r *Router) ResolveList(headers http.Header) (*Endpoint, error) {
	ep := &Endpoint{BaseURL: r.defaultURL(), Name: "openai"}
	if name := strings.ToLower(headers.Get(HeaderModelProvider)); name != "" {
		if url, ok := baseURLs[name]; ok {
			ep.BaseURL = url
			ep.Name = canonicalName(name)
		}
	}
	key, err := r.credentials(headers, ep.Name)
	if err != nil {
		return nil, err
	}
	ep.APIKey = key
	return ep, nil
}

// HasCredentials reports whether the request could authenticate an upstream
// call: a bearer header, or a recognised provider key in the environment.
func (r *Router) HasCredentials(headers http.Header) bool {
	if headers.Get("Authorization") != "" {
		return true
	}
	for _, envKey := range envKeys {
		if v, ok := r.lookupEnv(envKey); ok && v != "" {
			return true
		}
	}
	return false
}

// canonicalName folds aliases to one telemetry tag per provider.
func canonicalName(name string) string {
	if name == "claude" {
		return "anthropic"
	}
	return name
}

// hostTag derives a telemetry tag from a custom base URL.
func hostTag(baseURL string) string {
	u := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	if i := strings.IndexAny(u, "/:"); i != -1 {
		u = u[:i]
	}
	return u
}
