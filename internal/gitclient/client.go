package gitclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amplimindcc/backend-sub000/internal/errdefs"
)

// Client talks to a hosted git provider's REST API. Every call carries the
// bearer token, a JSON payload and the configured request timeout.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// RemoteError is a non-2xx response from the provider. Unwrap maps the
// status class onto the service error taxonomy.
type RemoteError struct {
	Op     string
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: remote returned %d: %s", e.Op, e.Status, e.Body)
}

func (e *RemoteError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return errdefs.ErrPermissionDenied
	case e.Status == http.StatusNotFound:
		return errdefs.ErrNotFound
	case e.Status == http.StatusConflict || e.Status == http.StatusUnprocessableEntity:
		return errdefs.ErrConflict
	case e.Status == http.StatusTooManyRequests || e.Status >= 500:
		return errdefs.ErrRemoteUnavailable
	default:
		return errdefs.ErrValidation
	}
}

// IsRetryable reports whether an error from a remote call is transient:
// connection/timeout failures, throttling and 5xx responses qualify;
// client-caused responses and cancelled contexts do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Status == http.StatusTooManyRequests || remote.Status >= 500
	}
	// Anything that never produced an HTTP status is a transport failure.
	return true
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &RemoteError{Op: op, Status: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: failed to decode response: %w", op, err)
		}
	}
	return nil
}

func (c *Client) GetRepo(ctx context.Context, owner, repo string) (*Repo, error) {
	var out Repo
	err := c.do(ctx, "get repository", http.MethodGet,
		fmt.Sprintf("/repos/%s/%s", owner, repo), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateRepo(ctx context.Context, name string, private, autoInit bool) (*Repo, error) {
	var out Repo
	err := c.do(ctx, "create repository", http.MethodPost, "/user/repos",
		createRepoRequest{Name: name, Private: private, AutoInit: autoInit}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateBlob(ctx context.Context, owner, repo, contentBase64 string) (string, error) {
	var out createBlobResponse
	err := c.do(ctx, "create blob", http.MethodPost,
		fmt.Sprintf("/repos/%s/%s/git/blobs", owner, repo),
		createBlobRequest{Content: contentBase64, Encoding: "base64"}, &out)
	if err != nil {
		return "", err
	}
	return out.SHA, nil
}

func (c *Client) GetRef(ctx context.Context, owner, repo, branch string) (*Ref, error) {
	var out Ref
	err := c.do(ctx, "get ref", http.MethodGet,
		fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", owner, repo, branch), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCommit(ctx context.Context, owner, repo, sha string) (*Commit, error) {
	var out Commit
	err := c.do(ctx, "get commit", http.MethodGet,
		fmt.Sprintf("/repos/%s/%s/git/commits/%s", owner, repo, sha), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateTree(ctx context.Context, owner, repo, baseTree string, entries []TreeEntry) (string, error) {
	var out createTreeResponse
	err := c.do(ctx, "create tree", http.MethodPost,
		fmt.Sprintf("/repos/%s/%s/git/trees", owner, repo),
		createTreeRequest{BaseTree: baseTree, Tree: entries}, &out)
	if err != nil {
		return "", err
	}
	return out.SHA, nil
}

func (c *Client) CreateCommit(ctx context.Context, owner, repo, message, tree string, parents []string) (string, error) {
	var out createCommitResponse
	err := c.do(ctx, "create commit", http.MethodPost,
		fmt.Sprintf("/repos/%s/%s/git/commits", owner, repo),
		createCommitRequest{Message: message, Tree: tree, Parents: parents}, &out)
	if err != nil {
		return "", err
	}
	return out.SHA, nil
}

func (c *Client) UpdateRef(ctx context.Context, owner, repo, branch, sha string, force bool) error {
	return c.do(ctx, "update ref", http.MethodPatch,
		fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", owner, repo, branch),
		updateRefRequest{SHA: sha, Force: force}, nil)
}

func (c *Client) DispatchWorkflow(ctx context.Context, owner, repo, workflow, ref string) error {
	return c.do(ctx, "dispatch workflow", http.MethodPost,
		fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/dispatches", owner, repo, workflow),
		dispatchWorkflowRequest{Ref: ref}, nil)
}

func (c *Client) ListArtifacts(ctx context.Context, owner, repo string) ([]Artifact, error) {
	var out listArtifactsResponse
	err := c.do(ctx, "list artifacts", http.MethodGet,
		fmt.Sprintf("/repos/%s/%s/actions/artifacts", owner, repo), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Artifacts, nil
}

func (c *Client) DownloadArtifact(ctx context.Context, owner, repo string, id int64) ([]byte, error) {
	op := "download artifact"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/repos/%s/%s/actions/artifacts/%d/zip", c.baseURL, owner, repo, id), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &RemoteError{Op: op, Status: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	return io.ReadAll(resp.Body)
}
