package gitclient

import "time"

type Repo struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

type Ref struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA  string `json:"sha"`
		Type string `json:"type"`
	} `json:"object"`
}

type Commit struct {
	SHA  string `json:"sha"`
	Tree struct {
		SHA string `json:"sha"`
	} `json:"tree"`
}

type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type Artifact struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_in_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type createRepoRequest struct {
	Name     string `json:"name"`
	Private  bool   `json:"private"`
	AutoInit bool   `json:"auto_init"`
}

type createBlobRequest struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type createBlobResponse struct {
	SHA string `json:"sha"`
}

type createTreeRequest struct {
	BaseTree string      `json:"base_tree,omitempty"`
	Tree     []TreeEntry `json:"tree"`
}

type createTreeResponse struct {
	SHA string `json:"sha"`
}

type createCommitRequest struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents"`
}

type createCommitResponse struct {
	SHA string `json:"sha"`
}

type updateRefRequest struct {
	SHA   string `json:"sha"`
	Force bool   `json:"force"`
}

type dispatchWorkflowRequest struct {
	Ref string `json:"ref"`
}

type listArtifactsResponse struct {
	TotalCount int64      `json:"total_count"`
	Artifacts  []Artifact `json:"artifacts"`
}
