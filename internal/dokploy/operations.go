package dokploy

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Typed wrappers over the platform endpoints the provisioner uses. Each
// returns the raw Response; id extraction is the caller's concern because
// several endpoints acknowledge with a bare string instead of a document.

func (c *Client) CreateProject(ctx context.Context, name, description string) (Response, error) {
	return c.Call(ctx, http.MethodPost, "/project.create", map[string]any{
		"name":        name,
		"description": description,
	}, CallOptions{})
}

func (c *Client) CreateApplication(ctx context.Context, projectID, name, description string) (Response, error) {
	return c.Call(ctx, http.MethodPost, "/application.create", map[string]any{
		"name":        name,
		"description": description,
		"projectId":   projectID,
	}, CallOptions{})
}

// SaveGitProvider attaches a custom git source to an application. The route
// spelling matches the platform's own ("saveGitProdiver").
func (c *Client) SaveGitProvider(ctx context.Context, applicationID, repoURL, branch, buildPath string) (Response, error) {
	return c.Call(ctx, http.MethodPost, "/application.saveGitProdiver", map[string]any{
		"applicationId":      applicationID,
		"customGitUrl":       repoURL,
		"customGitBranch":    branch,
		"customGitBuildPath": buildPath,
		"enableSubmodules":   false,
	}, CallOptions{})
}

type SaveBuildTypeParams struct {
	ApplicationID     string
	BuildType         string // "dockerfile" or "static"
	Dockerfile        string
	DockerContextPath string
	DockerBuildStage  string
	IsStaticSPA       bool
	PublishDirectory  string
}

func (c *Client) SaveBuildType(ctx context.Context, p SaveBuildTypeParams) (Response, error) {
	payload := map[string]any{
		"applicationId":     p.ApplicationID,
		"buildType":         p.BuildType,
		"dockerfile":        p.Dockerfile,
		"dockerContextPath": p.DockerContextPath,
		"dockerBuildStage":  p.DockerBuildStage,
		"isStaticSpa":       p.IsStaticSPA,
	}
	if p.PublishDirectory != "" {
		payload["publishDirectory"] = p.PublishDirectory
	}
	return c.Call(ctx, http.MethodPost, "/application.saveBuildType", payload, CallOptions{})
}

// SaveEnvironment writes the application's environment as a multi-line
// KEY=VALUE block, replacing whatever was there.
func (c *Client) SaveEnvironment(ctx context.Context, applicationID, env string) (Response, error) {
	return c.Call(ctx, http.MethodPost, "/application.saveEnvironment", map[string]any{
		"applicationId": applicationID,
		"env":           env,
	}, CallOptions{})
}

type CreatePostgresParams struct {
	ProjectID        string
	Name             string
	AppName          string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string
	DockerImage      string
}

func (c *Client) CreatePostgres(ctx context.Context, p CreatePostgresParams) (Response, error) {
	return c.Call(ctx, http.MethodPost, "/postgres.create", map[string]any{
		"name":             p.Name,
		"appName":          p.AppName,
		"databaseName":     p.DatabaseName,
		"databaseUser":     p.DatabaseUser,
		"databasePassword": p.DatabasePassword,
		"dockerImage":      p.DockerImage,
		"projectId":        p.ProjectID,
		"description":      fmt.Sprintf("Postgres DB %s for project %s", p.DatabaseName, p.ProjectID),
	}, CallOptions{})
}

func (c *Client) DeployPostgres(ctx context.Context, postgresID string) (Response, error) {
	return c.Call(ctx, http.MethodPost, "/postgres.deploy", map[string]any{
		"postgresId": postgresID,
	}, CallOptions{})
}

func (c *Client) DeployApplication(ctx context.Context, applicationID string) (Response, error) {
	return c.Call(ctx, http.MethodPost, "/application.deploy", map[string]any{
		"applicationId": applicationID,
	}, CallOptions{})
}

type CreateDomainParams struct {
	ApplicationID   string
	Host            string
	Port            int
	HTTPS           bool
	CertificateType string // "letsencrypt" or "none"
}

func (c *Client) CreateDomain(ctx context.Context, p CreateDomainParams) (Response, error) {
	return c.Call(ctx, http.MethodPost, "/domain.create", map[string]any{
		"applicationId":   p.ApplicationID,
		"host":            p.Host,
		"port":            p.Port,
		"https":           p.HTTPS,
		"certificateType": p.CertificateType,
		"domainType":      "application",
	}, CallOptions{})
}

func (c *Client) DeleteDomain(ctx context.Context, domainID string) (Response, error) {
	return c.Call(ctx, http.MethodPost, "/domain.delete", map[string]any{
		"domainId": domainID,
	}, CallOptions{Timeout: 30 * time.Second})
}

func (c *Client) ListProjects(ctx context.Context) (Response, error) {
	return c.Call(ctx, http.MethodGet, "/project.all", nil, CallOptions{Timeout: 30 * time.Second})
}
