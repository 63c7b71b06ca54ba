package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallSendsIdentityAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/contents/4/retention", r.URL.Path)
		assert.Equal(t, "7", r.Header.Get("X-Author-ID"))
		assert.Equal(t, "staff", r.Header.Get("X-Author-Roles"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(policyResponse{Name: "repo", HotCommitLimit: 3, Locked: true})
	}))
	defer srv.Close()

	cl := &apiClient{base: srv.URL + "/", userID: "7", roles: "staff"}
	var policy policyResponse
	require.NoError(t, cl.call("GET", "/api/v1/contents/4/retention", nil, &policy))
	assert.Equal(t, policyResponse{Name: "repo", HotCommitLimit: 3, Locked: true}, policy)
}

func TestCallReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"only staff may revoke"}`))
	}))
	defer srv.Close()

	cl := &apiClient{base: srv.URL, userID: "7"}
	err := cl.call("POST", "/api/v1/contents/4/revoke", map[string]string{"comment": "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only staff may revoke")
	assert.Contains(t, err.Error(), "403")
}

func TestShortSha(t *testing.T) {
	assert.Equal(t, "abc", shortSha("abc"))
	assert.Equal(t, "0123456789ab", shortSha("0123456789abcdef"))
}

func TestRevokeRequiresComment(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"revoke", "4"})
	assert.Error(t, root.Execute())
}
