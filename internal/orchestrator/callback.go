package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vista/provisioner/internal/model"
)

// HealthChecker probes the tenant backend's health endpoint.
type HealthChecker interface {
	Check(ctx context.Context, url string) error
}

// Finalizer hands the tenant its initial admin account once the backend is
// up. It runs exactly once per successful provisioning.
type Finalizer interface {
	ProvisionAdmin(ctx context.Context, pr *model.ProvisionRequest) error
}

type httpHealthChecker struct {
	client *http.Client
}

func (h *httpHealthChecker) Check(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health endpoint answered %d", resp.StatusCode)
	}
	return nil
}

// callbackFinalizer POSTs the admin bootstrap payload to the freshly
// provisioned backend's internal provisioning endpoint.
type callbackFinalizer struct {
	client *http.Client
	token  string
}

func (f *callbackFinalizer) ProvisionAdmin(ctx context.Context, pr *model.ProvisionRequest) error {
	if pr.BackendDomain == nil {
		return fmt.Errorf("no backend domain to finalize against")
	}

	password := pr.AdminPassword
	if password == "" && pr.DBPassword != nil {
		password = *pr.DBPassword
	}

	payload := map[string]any{
		"admin_email":    pr.Email,
		"admin_password": password,
		"tenant_id":      pr.TenantSuffix,
		"company":        pr.Company,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://%s/internal/provision", *pr.BackendDomain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Provision-Token", f.token)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("finalize callback: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("finalize callback answered %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return nil
}
