package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/signalharbor/voiceengine/pkg/types"
)

// AgentConfigPort is the boundary the engine uses to fetch a device's agent
// configuration at session start. The administrative console that serves
// this data is out of scope for this module; only the contract is defined
// here, plus a stub client for the one concrete shape it is known to take
// (an HTTP endpoint returning AgentConfig JSON).
type AgentConfigPort interface {
	// FetchAgentConfig returns the negotiated [types.AgentConfig] for
	// deviceID. Implementations should apply their own timeout; callers
	// additionally bound the call with ctx.
	FetchAgentConfig(ctx context.Context, deviceID string) (types.AgentConfig, error)
}

// HTTPAgentConfigPort implements [AgentConfigPort] against a JSON HTTP
// endpoint of the form "{BaseURL}/agents/{device_id}".
type HTTPAgentConfigPort struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAgentConfigPort creates a client for the agent-configuration fetch
// endpoint rooted at baseURL.
func NewHTTPAgentConfigPort(baseURL string) *HTTPAgentConfigPort {
	return &HTTPAgentConfigPort{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

var _ AgentConfigPort = (*HTTPAgentConfigPort)(nil)

// FetchAgentConfig issues a GET against {BaseURL}/agents/{device_id} and
// decodes the response body as a [types.AgentConfig].
func (p *HTTPAgentConfigPort) FetchAgentConfig(ctx context.Context, deviceID string) (types.AgentConfig, error) {
	u := fmt.Sprintf("%s/agents/%s", p.baseURL, url.PathEscape(deviceID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return types.AgentConfig{}, fmt.Errorf("config: build agent config request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return types.AgentConfig{}, fmt.Errorf("config: fetch agent config for %q: %w", deviceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.AgentConfig{}, fmt.Errorf("config: agent config fetch for %q returned status %d", deviceID, resp.StatusCode)
	}

	var cfg types.AgentConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return types.AgentConfig{}, fmt.Errorf("config: decode agent config for %q: %w", deviceID, err)
	}
	return cfg, nil
}

// StaticAgentConfigPort always returns the same configuration, useful for
// local development and tests where no admin console is running.
type StaticAgentConfigPort struct {
	Config types.AgentConfig
}

var _ AgentConfigPort = (*StaticAgentConfigPort)(nil)

// FetchAgentConfig returns p.Config unconditionally.
func (p *StaticAgentConfigPort) FetchAgentConfig(_ context.Context, _ string) (types.AgentConfig, error) {
	return p.Config, nil
}
