package xero

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type Connection struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	TenantType string `json:"tenantType"`
	TenantName string `json:"tenantName"`
}

type Contact struct {
	ContactID string `json:"ContactID"`
	Name      string `json:"Name"`
}

type Invoice struct {
	InvoiceID     string  `json:"InvoiceID"`
	InvoiceNumber string  `json:"InvoiceNumber"`
	Type          string  `json:"Type"`
	Status        string  `json:"Status"`
	Contact       Contact `json:"Contact"`
	DateString    string  `json:"DateString"`
	DueDateString string  `json:"DueDateString"`
	CurrencyCode  string  `json:"CurrencyCode"`
	Total         float64 `json:"Total"`
	AmountDue     float64 `json:"AmountDue"`
}

type invoicesResponse struct {
	Invoices []Invoice `json:"Invoices"`
}

// Connections lists the organisations the access token is authorised for.
func (c *Client) Connections(ctx context.Context, accessToken string) ([]Connection, error) {
	var conns []Connection
	if err := c.getJSON(ctx, c.config.ConnectionsURL, accessToken, "", &conns); err != nil {
		return nil, c.fail("connections", err)
	}
	return conns, nil
}

// Tenant returns the organisation to query. A previously chosen tenant wins;
// otherwise the only connection is used. With several connections the list
// is returned with ErrTenantSelection so the caller can ask the user.
func (c *Client) Tenant(w http.ResponseWriter, r *http.Request, accessToken string) (string, []Connection, error) {
	if tenant, ok := c.jar.get(r, cookieTenant); ok {
		return tenant, nil, nil
	}

	conns, err := c.Connections(r.Context(), accessToken)
	if err != nil {
		return "", nil, err
	}

	switch len(conns) {
	case 0:
		return "", nil, c.fail("connections", fmt.Errorf("no organisation is connected"))
	case 1:
		if err := c.jar.set(w, cookieTenant, conns[0].TenantID, RefreshTokenTTL); err != nil {
			return "", nil, c.fail("store tenant", err)
		}
		return conns[0].TenantID, conns, nil
	default:
		return "", conns, ErrTenantSelection
	}
}

// SelectTenant stores the user's choice after checking that the tenant is one
// of the connections.
func (c *Client) SelectTenant(w http.ResponseWriter, r *http.Request, tenantID string) error {
	token, err := c.AccessToken(w, r)
	if err != nil {
		return err
	}
	conns, err := c.Connections(r.Context(), token)
	if err != nil {
		return err
	}
	for _, conn := range conns {
		if conn.TenantID == tenantID {
			if err := c.jar.set(w, cookieTenant, tenantID, RefreshTokenTTL); err != nil {
				return c.fail("store tenant", err)
			}
			return nil
		}
	}
	return c.fail("select tenant", fmt.Errorf("tenant %q is not connected", tenantID))
}

// Invoices fetches the invoices of the selected organisation, refreshing the
// access token and resolving the tenant as needed. With ErrTenantSelection the
// connections to choose from are returned instead.
func (c *Client) Invoices(w http.ResponseWriter, r *http.Request) ([]Invoice, []Connection, error) {
	token, err := c.AccessToken(w, r)
	if err != nil {
		return nil, nil, err
	}
	tenant, conns, err := c.Tenant(w, r, token)
	if err != nil {
		return nil, conns, err
	}
	invoices, err := c.ListInvoices(r.Context(), token, tenant)
	return invoices, nil, err
}

// ListInvoices calls the Invoices endpoint for one tenant.
func (c *Client) ListInvoices(ctx context.Context, accessToken, tenant string) ([]Invoice, error) {
	var resp invoicesResponse
	url := strings.TrimSuffix(c.config.APIBaseURL, "/") + "/Invoices"
	if err := c.getJSON(ctx, url, accessToken, tenant, &resp); err != nil {
		return nil, c.fail("invoices", err)
	}
	return resp.Invoices, nil
}

func (c *Client) getJSON(ctx context.Context, url, accessToken, tenant string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if tenant != "" {
		req.Header.Set("Xero-tenant-id", tenant)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
