package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/keepotp/internal/common"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient(srv.URL, 5*time.Second), srv
}

func TestLogin_StoresToken(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/login", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req["username"])
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok123"})
	}))
	defer srv.Close()

	token, err := c.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok123", token)
	assert.Equal(t, "tok123", c.token)
}

func TestLogin_Unauthorized(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "invalid credentials"})
	}))
	defer srv.Close()

	_, err := c.Login(context.Background(), "alice", "bad")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Contains(t, err.Error(), "invalid credentials")
	assert.NotContains(t, err.Error(), "bad")
}

func TestRegister_Conflict(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "username taken"})
	}))
	defer srv.Close()

	err := c.Register(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestImportVault_SendsMultipart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "work.kdbx")
	require.NoError(t, os.WriteFile(dbPath, []byte("kdbx-bytes"), 0o600))

	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/vaults/import", r.URL.Path)
		assert.Equal(t, "Bearer tok123", r.Header.Get(common.AuthHeaderName))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, header, err := r.FormFile("database")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "work.kdbx", header.Filename)
		assert.Equal(t, "work", r.FormValue("name"))
		assert.Equal(t, "master", r.FormValue("password"))
		assert.Equal(t, "true", r.FormValue("snapshot"))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(ImportResult{VaultID: "v1", Imported: 3, TotalEntries: 5})
	}))
	defer srv.Close()

	c.SetToken("tok123")
	result, err := c.ImportVault(context.Background(), "work", dbPath, "", []byte("master"), true)
	require.NoError(t, err)
	assert.Equal(t, "v1", result.VaultID)
	assert.Equal(t, 3, result.Imported)
}

func TestImportVault_MissingFile(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", time.Second)
	_, err := c.ImportVault(context.Background(), "x", "/no/such/file.kdbx", "", nil, false)
	assert.Error(t, err)
}

func TestListSensors(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/sensors", r.URL.Path)
		json.NewEncoder(w).Encode([]SensorState{
			{Key: "github", Code: "287082", EntryName: "GitHub", Period: 30},
		})
	}))
	defer srv.Close()

	states, err := c.ListSensors(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "github", states[0].Key)
	assert.Equal(t, "287082", states[0].Code)
}

func TestSensorToken_NotFound(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "sensor not found"})
	}))
	defer srv.Close()

	_, err := c.SensorToken(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDeleteVault_NoContent(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	assert.NoError(t, c.DeleteVault(context.Background(), "v1"))
}
