// Package api is the HTTP client for the keepotp server. It wraps the
// REST endpoints the CLI needs and maps error responses onto the shared
// sentinel errors.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/keepotp/internal/common"
)

// Client talks to one keepotp server. It is safe for sequential use
// from the CLI; SetToken must happen before authenticated calls.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SetToken stores the access token used for authenticated requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// VaultInfo mirrors the server's vault listing.
type VaultInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	EntryCount  int       `json:"entry_count"`
	HasSnapshot bool      `json:"has_snapshot"`
	CreatedAt   time.Time `json:"created_at"`
}

// SensorState mirrors one published sensor.
type SensorState struct {
	Key           string `json:"key"`
	Code          string `json:"code"`
	EntryName     string `json:"entry_name"`
	Issuer        string `json:"issuer"`
	Account       string `json:"account"`
	TimeRemaining int    `json:"time_remaining"`
	Period        int    `json:"period"`
}

// ImportSkip reports one entry the import left out.
type ImportSkip struct {
	Entry  string `json:"entry"`
	Reason string `json:"reason"`
}

// ImportResult mirrors the server's import statistics.
type ImportResult struct {
	VaultID      string       `json:"vault_id"`
	Imported     int          `json:"imported"`
	TotalEntries int          `json:"total_entries"`
	Skipped      []ImportSkip `json:"skipped"`
}

func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth/register",
		map[string]string{"username": username, "password": password}, nil)
}

// Login returns the access token and remembers it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/login",
		map[string]string{"username": username, "password": password}, &resp)
	if err != nil {
		return "", err
	}
	c.token = resp.AccessToken
	return resp.AccessToken, nil
}

// ImportVault uploads a database file, an optional key file and the
// database password as one multipart request. The password never
// appears in URLs or error messages.
func (c *Client) ImportVault(ctx context.Context, name, databasePath, keyFilePath string, password []byte, snapshot bool) (*ImportResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := attachFile(mw, "database", databasePath); err != nil {
		return nil, err
	}
	if keyFilePath != "" {
		if err := attachFile(mw, "keyfile", keyFilePath); err != nil {
			return nil, err
		}
	}
	if err := mw.WriteField("name", name); err != nil {
		return nil, err
	}
	if err := mw.WriteField("password", string(password)); err != nil {
		return nil, err
	}
	if snapshot {
		if err := mw.WriteField("snapshot", "true"); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/vaults/import", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	result := &ImportResult{}
	if err := c.send(req, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) ListVaults(ctx context.Context) ([]VaultInfo, error) {
	var out []VaultInfo
	if err := c.doJSON(ctx, http.MethodGet, "/api/vaults", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteVault(ctx context.Context, vaultID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/vaults/"+vaultID, nil, nil)
}

func (c *Client) ListSensors(ctx context.Context) ([]SensorState, error) {
	var out []SensorState
	if err := c.doJSON(ctx, http.MethodGet, "/api/sensors", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SensorToken fetches the current code of one sensor.
func (c *Client) SensorToken(ctx context.Context, key string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/sensors/"+key+"/token", nil, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// SnapshotURL fetches the presigned download URL of a vault snapshot.
func (c *Client) SnapshotURL(ctx context.Context, vaultID string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/vaults/"+vaultID+"/snapshot", nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set(common.AuthHeaderName, "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiError maps an error response onto the shared sentinels, carrying
// the server's message along for display.
func apiError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	msg := body.Message
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", msg, common.ErrorUnauthorized)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, common.ErrorNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", msg, common.ErrorAlreadyExists)
	default:
		return fmt.Errorf("server error: %s", msg)
	}
}

func attachFile(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}
