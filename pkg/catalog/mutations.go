package catalog

import (
	"context"

	"github.com/mitchellh/mapstructure"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog/query"
)

// MutationKind names a catalog mutation for the invalidation table and the
// generic Execute entry point.
type MutationKind string

const (
	MutationCreateDataset MutationKind = "dataset.create"
	MutationUpdateDataset MutationKind = "dataset.update"
	MutationPatchDataset  MutationKind = "dataset.patch"
	MutationDeleteDataset MutationKind = "dataset.delete"

	MutationTriggerImport   MutationKind = "datastore.import"
	MutationImportComplete  MutationKind = "datastore.importComplete"
	MutationDeleteDatastore MutationKind = "datastore.delete"

	MutationRegisterHarvestPlan MutationKind = "harvest.register"
	MutationRunHarvest          MutationKind = "harvest.run"
	MutationHarvestComplete     MutationKind = "harvest.runComplete"

	MutationCreateRevision MutationKind = "revision.create"

	MutationCreateDictionary MutationKind = "dictionary.create"
	MutationUpdateDictionary MutationKind = "dictionary.update"
	MutationDeleteDictionary MutationKind = "dictionary.delete"
)

// DatasetVars identifies a dataset for delete/patch mutations.
type DatasetVars struct {
	Identifier string `mapstructure:"identifier"`
}

// PatchDatasetVars carries a partial dataset document.
type PatchDatasetVars struct {
	Identifier string         `mapstructure:"identifier"`
	Patch      map[string]any `mapstructure:"patch"`
}

// ImportVars identifies the distribution whose datastore is affected.
type ImportVars struct {
	DistributionID string `mapstructure:"distribution_id"`
}

// HarvestVars identifies a harvest plan and optionally one of its runs.
type HarvestVars struct {
	PlanID string `mapstructure:"plan_id"`
	RunID  string `mapstructure:"run_id"`
}

// RevisionVars carries a workflow-state transition for a schema item.
type RevisionVars struct {
	SchemaID   string        `mapstructure:"schema_id"`
	Identifier string        `mapstructure:"identifier"`
	State      WorkflowState `mapstructure:"state"`
	Message    string        `mapstructure:"message"`
}

// DictionaryVars identifies a data dictionary.
type DictionaryVars struct {
	Identifier string `mapstructure:"identifier"`
}

// invalidationTable declares, per mutation kind, which cache-key prefixes a
// successful mutation marks stale. Entries may inspect the mutation
// variables; the revision entry additionally invalidates the dataset list
// only when the transitioned item is a dataset.
var invalidationTable = map[MutationKind]func(vars any) []query.Key{
	MutationCreateDataset: func(any) []query.Key { return []query.Key{{"datasets"}} },
	MutationUpdateDataset: func(any) []query.Key { return []query.Key{{"datasets"}} },
	MutationPatchDataset:  func(any) []query.Key { return []query.Key{{"datasets"}} },
	MutationDeleteDataset: func(any) []query.Key { return []query.Key{{"datasets"}} },

	MutationTriggerImport: func(any) []query.Key {
		return []query.Key{{"datastore", "imports"}}
	},
	// a finished import materialized new rows: dataset lists may now carry
	// changed datastore statistics
	MutationImportComplete: func(vars any) []query.Key {
		keys := []query.Key{{"datasets"}}
		if v, ok := vars.(ImportVars); ok && v.DistributionID != "" {
			keys = append(keys, query.Key{"datastore", "query", v.DistributionID})
		}
		return keys
	},
	MutationDeleteDatastore: func(vars any) []query.Key {
		keys := []query.Key{{"datastore", "imports"}}
		if v, ok := vars.(ImportVars); ok && v.DistributionID != "" {
			keys = append(keys, query.Key{"datastore", "query", v.DistributionID})
		}
		return keys
	},

	MutationRegisterHarvestPlan: func(any) []query.Key {
		return []query.Key{{"harvest", "plans"}}
	},
	MutationRunHarvest: func(vars any) []query.Key {
		keys := []query.Key{{"harvest", "runs"}}
		if v, ok := vars.(HarvestVars); ok && v.PlanID != "" {
			keys = append(keys, query.Key{"harvest", "runs", v.PlanID})
		}
		return keys
	},
	// a completed harvest run created or updated datasets
	MutationHarvestComplete: func(any) []query.Key {
		return []query.Key{{"datasets"}, {"harvest", "runs"}}
	},

	MutationCreateRevision: func(vars any) []query.Key {
		v, ok := vars.(RevisionVars)
		if !ok {
			return nil
		}
		keys := []query.Key{
			{"schema", v.SchemaID, "revisions", v.Identifier},
			{"schema", v.SchemaID, "single", v.Identifier},
		}
		if v.SchemaID == "dataset" {
			keys = append(keys, query.Key{"datasets"})
		}
		return keys
	},

	MutationCreateDictionary: func(any) []query.Key {
		return []query.Key{{"schema", "data-dictionary"}}
	},
	MutationUpdateDictionary: func(any) []query.Key {
		return []query.Key{{"schema", "data-dictionary"}}
	},
	MutationDeleteDictionary: func(any) []query.Key {
		return []query.Key{{"schema", "data-dictionary"}}
	},
}

// invalidationsFor resolves the key prefixes a successful mutation of the
// given kind marks stale.
func invalidationsFor(kind MutationKind, vars any) []query.Key {
	fn, ok := invalidationTable[kind]
	if !ok {
		return nil
	}
	return fn(vars)
}

// Execute runs a mutation by kind with loosely-typed variables, decoding them
// into the kind's variable struct. It exists for consumers that dispatch
// mutations generically; typed methods are preferred when the kind is known
// at compile time.
func (c *Client) Execute(ctx context.Context, kind MutationKind, vars any) ([]byte, error) {
	switch kind {
	case MutationCreateDataset:
		var ds Dataset
		if err := decodeVars(vars, &ds); err != nil {
			return nil, err
		}
		created, err := c.CreateDataset(ctx, ds)
		if err != nil {
			return nil, err
		}
		return json.Marshal(created)
	case MutationUpdateDataset:
		var ds Dataset
		if err := decodeVars(vars, &ds); err != nil {
			return nil, err
		}
		updated, err := c.UpdateDataset(ctx, ds)
		if err != nil {
			return nil, err
		}
		return json.Marshal(updated)
	case MutationPatchDataset:
		var v PatchDatasetVars
		if err := decodeVars(vars, &v); err != nil {
			return nil, err
		}
		patched, err := c.PatchDataset(ctx, v.Identifier, v.Patch)
		if err != nil {
			return nil, err
		}
		return json.Marshal(patched)
	case MutationDeleteDataset:
		var v DatasetVars
		if err := decodeVars(vars, &v); err != nil {
			return nil, err
		}
		return nil, c.DeleteDataset(ctx, v.Identifier)
	case MutationTriggerImport:
		var v ImportVars
		if err := decodeVars(vars, &v); err != nil {
			return nil, err
		}
		imp, err := c.TriggerDatastoreImport(ctx, v.DistributionID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(imp)
	case MutationDeleteDatastore:
		var v ImportVars
		if err := decodeVars(vars, &v); err != nil {
			return nil, err
		}
		return nil, c.DeleteDatastore(ctx, v.DistributionID)
	case MutationRegisterHarvestPlan:
		var plan HarvestPlan
		if err := decodeVars(vars, &plan); err != nil {
			return nil, err
		}
		registered, err := c.RegisterHarvestPlan(ctx, plan)
		if err != nil {
			return nil, err
		}
		return json.Marshal(registered)
	case MutationRunHarvest:
		var v HarvestVars
		if err := decodeVars(vars, &v); err != nil {
			return nil, err
		}
		run, err := c.RunHarvest(ctx, v.PlanID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(run)
	case MutationCreateRevision:
		var v RevisionVars
		if err := decodeVars(vars, &v); err != nil {
			return nil, err
		}
		rev, err := c.CreateRevision(ctx, v.SchemaID, v.Identifier, v.State, v.Message)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rev)
	case MutationCreateDictionary:
		var d DataDictionary
		if err := decodeVars(vars, &d); err != nil {
			return nil, err
		}
		created, err := c.CreateDataDictionary(ctx, d)
		if err != nil {
			return nil, err
		}
		return json.Marshal(created)
	case MutationUpdateDictionary:
		var d DataDictionary
		if err := decodeVars(vars, &d); err != nil {
			return nil, err
		}
		updated, err := c.UpdateDataDictionary(ctx, d)
		if err != nil {
			return nil, err
		}
		return json.Marshal(updated)
	case MutationDeleteDictionary:
		var v DictionaryVars
		if err := decodeVars(vars, &v); err != nil {
			return nil, err
		}
		return nil, c.DeleteDataDictionary(ctx, v.Identifier)
	default:
		return nil, ErrValidation.Msg("unknown mutation kind: " + string(kind))
	}
}

// decodeVars coerces loosely-typed mutation variables (maps, or the typed
// struct itself) into the kind's variable struct.
func decodeVars(vars any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
		Squash:  true,
	})
	if err != nil {
		return ErrValidation.MsgErr("invalid mutation variables", err)
	}
	if err := dec.Decode(vars); err != nil {
		return ErrValidation.MsgErr("invalid mutation variables", err)
	}
	return nil
}
