package gitclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplimindcc/backend-sub000/internal/errdefs"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-token", time.Second)
}

func TestGetRepo_DecodesResponse(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/org/submission-x", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(Repo{Name: "submission-x", DefaultBranch: "main"})
	})

	repo, err := c.GetRepo(context.Background(), "org", "submission-x")

	require.NoError(t, err)
	assert.Equal(t, "submission-x", repo.Name)
	assert.Equal(t, "main", repo.DefaultBranch)
}

func TestCreateBlob_SendsBase64Payload(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req createBlobRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "base64", req.Encoding)
		assert.Equal(t, "cGFja2FnZSBtYWlu", req.Content)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(createBlobResponse{SHA: "abc123"})
	})

	sha, err := c.CreateBlob(context.Background(), "org", "submission-x", "cGFja2FnZSBtYWlu")

	require.NoError(t, err)
	assert.Equal(t, "abc123", sha)
}

func TestDo_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, errdefs.ErrPermissionDenied},
		{http.StatusForbidden, errdefs.ErrPermissionDenied},
		{http.StatusNotFound, errdefs.ErrNotFound},
		{http.StatusConflict, errdefs.ErrConflict},
		{http.StatusUnprocessableEntity, errdefs.ErrConflict},
		{http.StatusTooManyRequests, errdefs.ErrRemoteUnavailable},
		{http.StatusInternalServerError, errdefs.ErrRemoteUnavailable},
		{http.StatusBadGateway, errdefs.ErrRemoteUnavailable},
		{http.StatusBadRequest, errdefs.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			_, err := c.GetRepo(context.Background(), "org", "submission-x")

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "status %d should map to %v, got %v", tt.status, tt.want, err)

			var remote *RemoteError
			require.True(t, errors.As(err, &remote))
			assert.Equal(t, tt.status, remote.Status)
			assert.Equal(t, "nope", remote.Body)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))

	assert.False(t, IsRetryable(&RemoteError{Status: http.StatusNotFound}))
	assert.False(t, IsRetryable(&RemoteError{Status: http.StatusUnprocessableEntity}))
	assert.True(t, IsRetryable(&RemoteError{Status: http.StatusTooManyRequests}))
	assert.True(t, IsRetryable(&RemoteError{Status: http.StatusServiceUnavailable}))

	assert.True(t, IsRetryable(errors.New("connection refused")))
}

func TestUpdateRef_NoResponseBodyExpected(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)

		var req updateRefRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "new-sha", req.SHA)
		assert.True(t, req.Force)

		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, c.UpdateRef(context.Background(), "org", "submission-x", "main", "new-sha", true))
}

func TestDownloadArtifact(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/org/submission-x/actions/artifacts/7/zip", r.URL.Path)
		w.Write([]byte("report bytes"))
	})

	data, err := c.DownloadArtifact(context.Background(), "org", "submission-x", 7)

	require.NoError(t, err)
	assert.Equal(t, []byte("report bytes"), data)
}

func TestListArtifacts(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(listArtifactsResponse{Artifacts: []Artifact{
			{ID: 1, Name: "report"},
			{ID: 2, Name: "report"},
		}})
	})

	artifacts, err := c.ListArtifacts(context.Background(), "org", "submission-x")

	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, int64(2), artifacts[1].ID)
}
