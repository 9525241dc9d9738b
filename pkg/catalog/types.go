package catalog

// WorkflowState is a content-moderation state for a schema item. Exactly one
// revision per item is current; creating a published revision moves the item
// into the published state.
type WorkflowState string

const (
	WorkflowDraft     WorkflowState = "draft"
	WorkflowPublished WorkflowState = "published"
	WorkflowHidden    WorkflowState = "hidden"
	WorkflowArchived  WorkflowState = "archived"
	WorkflowOrphaned  WorkflowState = "orphaned"
)

// Publisher identifies the organization that published a dataset.
type Publisher struct {
	Name string `json:"name"`
}

// Distribution is a single downloadable or queryable file reference within a
// dataset. DescribedBy optionally points at the data dictionary for the file.
type Distribution struct {
	Identifier  string `json:"identifier,omitempty"`
	Title       string `json:"title,omitempty"`
	DownloadURL string `json:"downloadURL,omitempty"`
	Format      string `json:"format,omitempty"`
	MediaType   string `json:"mediaType,omitempty"`
	DescribedBy string `json:"describedBy,omitempty"`
}

// Dataset is a cataloged collection of metadata plus its distributions.
type Dataset struct {
	Identifier   string         `json:"identifier"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	AccessLevel  string         `json:"accessLevel,omitempty"`
	Modified     string         `json:"modified,omitempty"`
	Publisher    *Publisher     `json:"publisher,omitempty"`
	Keyword      []string       `json:"keyword,omitempty"`
	Theme        []string       `json:"theme,omitempty"`
	Distribution []Distribution `json:"distribution,omitempty"`
}

// ImportStatus is the lifecycle state of a datastore import job.
// Terminal states have no outgoing transition; a finished job is never
// resurrected except by re-triggering, which creates a new job.
type ImportStatus string

const (
	ImportQueued     ImportStatus = "QUEUED"
	ImportInProgress ImportStatus = "IN_PROGRESS"
	ImportDone       ImportStatus = "DONE"
	ImportError      ImportStatus = "ERROR"
)

// Terminal reports whether the status admits no further transitions.
func (s ImportStatus) Terminal() bool {
	return s == ImportDone || s == ImportError
}

// DatastoreImport is the job entity created by triggering an import of a
// distribution's file into a queryable table.
type DatastoreImport struct {
	Identifier      string       `json:"identifier,omitempty"`
	Status          ImportStatus `json:"status"`
	PercentDone     int          `json:"percent_done,omitempty"`
	RecordsImported int          `json:"records_imported,omitempty"`
	ErrorDetail     string       `json:"error,omitempty"`
}

// DatastoreStatistics carries row and column statistics for a materialized
// datastore table.
type DatastoreStatistics struct {
	RowCount    int      `json:"numOfRows"`
	ColumnCount int      `json:"numOfColumns"`
	Columns     []string `json:"columns,omitempty"`
}

// HarvestStep is one stage of a harvest plan's extract/transform/load chain.
type HarvestStep struct {
	Type string `json:"type"`
	URI  string `json:"uri,omitempty"`
}

// HarvestPlan is a harvest source configuration. Plans are not mutated in
// place; re-registration replaces the plan wholesale.
type HarvestPlan struct {
	Identifier string        `json:"identifier"`
	Extract    HarvestStep   `json:"extract"`
	Transforms []HarvestStep `json:"transforms,omitempty"`
	Load       HarvestStep   `json:"load"`
}

// HarvestRunStatus is the lifecycle state of one harvest execution.
type HarvestRunStatus string

const (
	HarvestQueued   HarvestRunStatus = "queued"
	HarvestRunning  HarvestRunStatus = "running"
	HarvestComplete HarvestRunStatus = "complete"
	HarvestFailed   HarvestRunStatus = "failed"
)

// Terminal reports whether the run has finished. Runs are immutable once
// terminal.
func (s HarvestRunStatus) Terminal() bool {
	return s == HarvestComplete || s == HarvestFailed
}

// HarvestLoadStatus summarizes what a harvest run did to the catalog.
type HarvestLoadStatus struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Errored   int `json:"errored"`
	Unchanged int `json:"unchanged"`
}

// HarvestRun is one execution of a harvest plan.
type HarvestRun struct {
	Identifier string            `json:"identifier"`
	PlanID     string            `json:"plan_id,omitempty"`
	Status     HarvestRunStatus  `json:"status"`
	Load       HarvestLoadStatus `json:"load,omitempty"`
	Errors     []string          `json:"errors,omitempty"`
}

// Revision is an immutable audit record of a workflow-state transition for a
// schema item.
type Revision struct {
	Identifier string        `json:"identifier"`
	State      WorkflowState `json:"state"`
	Message    string        `json:"message,omitempty"`
	Published  bool          `json:"published"`
	Modified   string        `json:"modified,omitempty"`
}

// DictionaryField describes one column of a data dictionary's table schema.
type DictionaryField struct {
	Name        string         `json:"name"`
	Title       string         `json:"title,omitempty"`
	Type        string         `json:"type,omitempty"`
	Format      string         `json:"format,omitempty"`
	Constraints map[string]any `json:"constraints,omitempty"`
}

// TableSchema is the fields/types/constraints document inside a data
// dictionary.
type TableSchema struct {
	Fields []DictionaryField `json:"fields"`
}

// DataDictionary is a schema document associated with a distribution by
// identifier.
type DataDictionary struct {
	Identifier string      `json:"identifier"`
	Title      string      `json:"title,omitempty"`
	Data       TableSchema `json:"data"`
}
