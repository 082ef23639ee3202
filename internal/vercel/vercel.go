// Package vercel manages the deployment's project settings through the
// Vercel REST API.
package vercel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "propertypackaging/internal/logging"
	"propertypackaging/internal/metrics"
)

const DefaultBaseURL = "https://api.vercel.com"

var ErrNotConfigured = errors.New("VERCEL_API_TOKEN environment variable is not set")

// Environment targets accepted by SetEnv.
const (
	TargetProduction  = "production"
	TargetPreview     = "preview"
	TargetDevelopment = "development"
)

type Config struct {
	BaseURL string
	Token   string
	TeamID  string
}

type Client struct {
	config     Config
	httpClient *http.Client
}

func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	return &Client{config: config, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) Configured() bool {
	return c != nil && c.config.Token != ""
}

// Project is the subset of /v9/projects we show on the admin page.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Framework string `json:"framework,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
	Link      *struct {
		Type string `json:"type"`
		Repo string `json:"repo"`
	} `json:"link,omitempty"`
}

type EnvVar struct {
	ID     string   `json:"id,omitempty"`
	Key    string   `json:"key"`
	Value  string   `json:"value,omitempty"`
	Type   string   `json:"type"`
	Target []string `json:"target"`
}

type envList struct {
	Envs []EnvVar `json:"envs"`
}

type Deployment struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Name       string `json:"name"`
	ReadyState string `json:"readyState"`
	CreatedAt  int64  `json:"createdAt,omitempty"`
}

type gitSource struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
	Repo string `json:"repo"`
}

type deployRequest struct {
	Name      string    `json:"name"`
	GitSource gitSource `json:"gitSource"`
}

func (c *Client) endpoint(path string) string {
	if c.config.TeamID == "" {
		return c.config.BaseURL + path
	}
	return c.config.BaseURL + path + "?teamId=" + url.QueryEscape(c.config.TeamID)
}

// do sends a request and decodes a 2xx answer into out. Other statuses
// become "<action>: <status> <body>".
func (c *Client) do(ctx context.Context, method, path, action string, body, out interface{}) (err error) {
	if !c.Configured() {
		return ErrNotConfigured
	}
	start := time.Now()
	defer func() { metrics.ObserveUpstream("vercel", start, err) }()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Content-Type", "application/json")

	log.WithFields(log.Fields{
		"event":  "vercel_request",
		"method": method,
		"path":   path,
	}).Debug("Making request to Vercel")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: %d %s", action, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) GetProject(ctx context.Context, project string) (*Project, error) {
	var p Project
	if err := c.do(ctx, http.MethodGet, "/v9/projects/"+url.PathEscape(project), "Failed to get project info", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListEnv(ctx context.Context, project string) ([]EnvVar, error) {
	var list envList
	if err := c.do(ctx, http.MethodGet, "/v10/projects/"+url.PathEscape(project)+"/env", "Failed to get environment variables", nil, &list); err != nil {
		return nil, err
	}
	return list.Envs, nil
}

// SetEnv creates an encrypted variable. An empty target means production.
func (c *Client) SetEnv(ctx context.Context, project, key, value string, targets ...string) (*EnvVar, error) {
	if len(targets) == 0 {
		targets = []string{TargetProduction}
	}
	in := EnvVar{Key: key, Value: value, Type: "encrypted", Target: targets}
	var out EnvVar
	if err := c.do(ctx, http.MethodPost, "/v10/projects/"+url.PathEscape(project)+"/env", "Failed to set environment variable", in, &out); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"event":   "vercel_env_set",
		"project": project,
		"key":     key,
	}).Info("Set Vercel environment variable")
	return &out, nil
}

// Deploy starts a deployment of the GitHub repo named like the project.
func (c *Client) Deploy(ctx context.Context, project, ref string) (*Deployment, error) {
	if ref == "" {
		ref = "main"
	}
	in := deployRequest{Name: project, GitSource: gitSource{Type: "github", Ref: ref, Repo: project}}
	var out Deployment
	if err := c.do(ctx, http.MethodPost, "/v13/deployments", "Failed to trigger deployment", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeploymentStatus(ctx context.Context, deploymentID string) (*Deployment, error) {
	var out Deployment
	if err := c.do(ctx, http.MethodGet, "/v13/deployments/"+url.PathEscape(deploymentID), "Failed to get deployment status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
