package publisher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/amplimindcc/backend-sub000/internal/archive"
	"github.com/amplimindcc/backend-sub000/internal/errdefs"
	"github.com/amplimindcc/backend-sub000/internal/gitclient"
	"github.com/amplimindcc/backend-sub000/pkg/logger"
	"github.com/amplimindcc/backend-sub000/pkg/retry"
)

const (
	blobMode = "100644"

	DefaultBranch      = "main"
	DefaultConcurrency = 4
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 500 * time.Millisecond
)

// RemoteGit is the slice of the provider API the publisher drives.
type RemoteGit interface {
	GetRepo(ctx context.Context, owner, repo string) (*gitclient.Repo, error)
	CreateRepo(ctx context.Context, name string, private, autoInit bool) (*gitclient.Repo, error)
	CreateBlob(ctx context.Context, owner, repo, contentBase64 string) (string, error)
	GetRef(ctx context.Context, owner, repo, branch string) (*gitclient.Ref, error)
	GetCommit(ctx context.Context, owner, repo, sha string) (*gitclient.Commit, error)
	CreateTree(ctx context.Context, owner, repo, baseTree string, entries []gitclient.TreeEntry) (string, error)
	CreateCommit(ctx context.Context, owner, repo, message, tree string, parents []string) (string, error)
	UpdateRef(ctx context.Context, owner, repo, branch, sha string, force bool) error
	DispatchWorkflow(ctx context.Context, owner, repo, workflow, ref string) error
	ListArtifacts(ctx context.Context, owner, repo string) ([]gitclient.Artifact, error)
	DownloadArtifact(ctx context.Context, owner, repo string, id int64) ([]byte, error)
}

type Config struct {
	RepoOwner    string // account the candidate repositories live under
	Branch       string
	Concurrency  int
	MaxAttempts  int
	RetryDelay   time.Duration
	WorkflowFile string
}

// Publisher materializes a submission bundle into a hosted repository via
// the blob -> tree -> commit -> ref sequence, with bounded concurrent blob
// uploads and typed retry around every remote call.
type Publisher struct {
	git   RemoteGit
	cfg   Config
	retry retry.Policy
	log   *logger.Logger
}

func New(git RemoteGit, cfg Config, log *logger.Logger) *Publisher {
	if cfg.Branch == "" {
		cfg.Branch = DefaultBranch
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Publisher{
		git: git,
		cfg: cfg,
		retry: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			Delay:       cfg.RetryDelay,
			Retryable:   gitclient.IsRetryable,
		},
		log: log,
	}
}

// RepoNameFor derives the repository name for a candidate identity. The
// mapping is stable so repeated publishes land in the same repository.
func RepoNameFor(identity string) string {
	name := strings.ToLower(identity)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, name)
	return "submission-" + strings.Trim(name, "-")
}

// Publish uploads every file of the bundle plus a generated README and
// advances the branch to a commit containing them. Re-running after a
// partial failure is safe: blobs are content-addressed and the tree and
// commit are deterministic for the same inputs.
func (p *Publisher) Publish(ctx context.Context, identity string, bundle *archive.Bundle, description string) error {
	repo := RepoNameFor(identity)

	if err := p.ensureRepo(ctx, repo); err != nil {
		return err
	}

	entries, err := p.uploadBlobs(ctx, repo, bundle, description)
	if err != nil {
		return err
	}

	head, baseTree, err := p.branchHead(ctx, repo)
	if err != nil {
		return err
	}

	treeSHA, err := retry.Do(ctx, p.retry, "create tree", func(ctx context.Context) (string, error) {
		return p.git.CreateTree(ctx, p.cfg.RepoOwner, repo, baseTree, entries)
	})
	if err != nil {
		return err
	}

	commitSHA, err := retry.Do(ctx, p.retry, "create commit", func(ctx context.Context) (string, error) {
		return p.git.CreateCommit(ctx, p.cfg.RepoOwner, repo,
			fmt.Sprintf("Add submission from %s", identity), treeSHA, []string{head})
	})
	if err != nil {
		return err
	}

	// The branch always fast-forwards: one publish per submission.
	err = retry.DoVoid(ctx, p.retry, "update ref", func(ctx context.Context) error {
		return p.git.UpdateRef(ctx, p.cfg.RepoOwner, repo, p.cfg.Branch, commitSHA, true)
	})
	if err != nil {
		return err
	}

	p.log.Info("published submission",
		zap.String("repo", repo),
		zap.String("commit", commitSHA),
		zap.Int("files", bundle.Len()+1),
	)
	return nil
}

// ensureRepo creates the candidate repository on first publish. Auto-init
// guarantees the branch ref exists before the first real commit.
func (p *Publisher) ensureRepo(ctx context.Context, repo string) error {
	_, err := retry.Do(ctx, p.retry, "get repository", func(ctx context.Context) (*gitclient.Repo, error) {
		return p.git.GetRepo(ctx, p.cfg.RepoOwner, repo)
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, errdefs.ErrNotFound) {
		return err
	}

	_, err = retry.Do(ctx, p.retry, "create repository", func(ctx context.Context) (*gitclient.Repo, error) {
		return p.git.CreateRepo(ctx, repo, true, true)
	})
	if err != nil && !errors.Is(err, errdefs.ErrConflict) {
		return err
	}
	return nil
}

// uploadBlobs fans the bundle out over a bounded worker group. The first
// failed upload cancels the in-flight rest; the caller blocks until the
// whole group has drained.
func (p *Publisher) uploadBlobs(ctx context.Context, repo string, bundle *archive.Bundle, description string) ([]gitclient.TreeEntry, error) {
	files := bundle.Files()
	entries := make([]gitclient.TreeEntry, len(files)+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			content, err := f.Bytes()
			if err != nil {
				return err
			}
			sha, err := p.createBlob(gctx, repo, content)
			if err != nil {
				return err
			}
			entries[i] = gitclient.TreeEntry{Path: f.Path, Mode: blobMode, Type: "blob", SHA: sha}
			return nil
		})
	}

	g.Go(func() error {
		sha, err := p.createBlob(gctx, repo, readmeContent(description))
		if err != nil {
			return err
		}
		entries[len(files)] = gitclient.TreeEntry{Path: archive.ReadmePath, Mode: blobMode, Type: "blob", SHA: sha}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (p *Publisher) createBlob(ctx context.Context, repo string, content []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(content)
	return retry.Do(ctx, p.retry, "create blob", func(ctx context.Context) (string, error) {
		return p.git.CreateBlob(ctx, p.cfg.RepoOwner, repo, encoded)
	})
}

func (p *Publisher) branchHead(ctx context.Context, repo string) (head, tree string, err error) {
	ref, err := retry.Do(ctx, p.retry, "get ref", func(ctx context.Context) (*gitclient.Ref, error) {
		return p.git.GetRef(ctx, p.cfg.RepoOwner, repo, p.cfg.Branch)
	})
	if err != nil {
		return "", "", err
	}

	commit, err := retry.Do(ctx, p.retry, "get commit", func(ctx context.Context) (*gitclient.Commit, error) {
		return p.git.GetCommit(ctx, p.cfg.RepoOwner, repo, ref.Object.SHA)
	})
	if err != nil {
		return "", "", err
	}
	return ref.Object.SHA, commit.Tree.SHA, nil
}

// TriggerCI dispatches the review workflow for a candidate repository.
func (p *Publisher) TriggerCI(ctx context.Context, identity string) error {
	if p.cfg.WorkflowFile == "" {
		return nil
	}
	repo := RepoNameFor(identity)
	return retry.DoVoid(ctx, p.retry, "dispatch workflow", func(ctx context.Context) error {
		return p.git.DispatchWorkflow(ctx, p.cfg.RepoOwner, repo, p.cfg.WorkflowFile, p.cfg.Branch)
	})
}

// LatestReport downloads the newest workflow artifact for a candidate
// repository, typically the test report produced after publishing.
func (p *Publisher) LatestReport(ctx context.Context, identity string) ([]byte, error) {
	repo := RepoNameFor(identity)

	artifacts, err := retry.Do(ctx, p.retry, "list artifacts", func(ctx context.Context) ([]gitclient.Artifact, error) {
		return p.git.ListArtifacts(ctx, p.cfg.RepoOwner, repo)
	})
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("no artifacts for %s: %w", repo, errdefs.ErrNotFound)
	}

	newest := artifacts[0]
	for _, a := range artifacts[1:] {
		if a.CreatedAt.After(newest.CreatedAt) {
			newest = a
		}
	}

	return retry.Do(ctx, p.retry, "download artifact", func(ctx context.Context) ([]byte, error) {
		return p.git.DownloadArtifact(ctx, p.cfg.RepoOwner, repo, newest.ID)
	})
}

func readmeContent(description string) []byte {
	var b strings.Builder
	b.WriteString("# Submission\n\n")
	if description != "" {
		b.WriteString(description)
		b.WriteString("\n")
	}
	return []byte(b.String())
}
