package catalog

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/httpclient"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog/query"
)

var workflowStates = map[WorkflowState]struct{}{
	WorkflowDraft:     {},
	WorkflowPublished: {},
	WorkflowHidden:    {},
	WorkflowArchived:  {},
	WorkflowOrphaned:  {},
}

// CreateRevision records a workflow-state transition for a schema item.
// Revisions are immutable audit records; creating one supersedes the item's
// current revision. A successful transition marks the item's revision history
// and single-item caches stale, plus the dataset list when the item is a
// dataset.
func (c *Client) CreateRevision(ctx context.Context, schemaID, identifier string, state WorkflowState, message string) (*Revision, error) {
	if strings.TrimSpace(schemaID) == "" {
		return nil, fieldError("schemaID", "must not be empty")
	}
	if strings.TrimSpace(identifier) == "" {
		return nil, fieldError("identifier", "must not be empty")
	}
	if _, ok := workflowStates[state]; !ok {
		return nil, fieldError("state", "unknown workflow state: "+string(state))
	}
	body, err := json.Marshal(map[string]string{
		"state":   string(state),
		"message": message,
	})
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid revision", err)
	}
	vars := RevisionVars{SchemaID: schemaID, Identifier: identifier, State: state, Message: message}
	resp, err := c.mutate(ctx, MutationCreateRevision, vars, httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   path.Join(metastoreBase, schemaID, "items", identifier, "revisions"),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	rev := &Revision{State: state, Message: message, Published: state == WorkflowPublished}
	if id := gjson.GetBytes(resp, "identifier").String(); id != "" {
		rev.Identifier = id
	}
	return rev, nil
}

// ListRevisions fetches the revision history of a schema item, newest first.
func (c *Client) ListRevisions(ctx context.Context, schemaID, identifier string) ([]Revision, error) {
	if strings.TrimSpace(schemaID) == "" {
		return nil, fieldError("schemaID", "must not be empty")
	}
	if strings.TrimSpace(identifier) == "" {
		return nil, fieldError("identifier", "must not be empty")
	}
	key := query.Key{"schema", schemaID, "revisions", identifier}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(metastoreBase, schemaID, "items", identifier, "revisions"),
	}, decodeValue[[]Revision])
	if err != nil {
		return nil, err
	}
	return *v.(*[]Revision), nil
}

// GetRevision fetches one revision of a schema item.
func (c *Client) GetRevision(ctx context.Context, schemaID, identifier, revisionID string) (*Revision, error) {
	if strings.TrimSpace(schemaID) == "" {
		return nil, fieldError("schemaID", "must not be empty")
	}
	if strings.TrimSpace(identifier) == "" {
		return nil, fieldError("identifier", "must not be empty")
	}
	if strings.TrimSpace(revisionID) == "" {
		return nil, fieldError("revisionID", "must not be empty")
	}
	key := query.Key{"schema", schemaID, "revisions", identifier, revisionID}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(metastoreBase, schemaID, "items", identifier, "revisions", revisionID),
	}, decodeValue[Revision])
	if err != nil {
		return nil, err
	}
	return v.(*Revision), nil
}

// ChangeDatasetState is shorthand for creating a revision on a dataset.
// Publishing a hidden or draft dataset this way also marks the dataset list
// stale, since the dataset becomes publicly visible.
func (c *Client) ChangeDatasetState(ctx context.Context, identifier string, state WorkflowState, message string) (*Revision, error) {
	return c.CreateRevision(ctx, "dataset", identifier, state, message)
}
