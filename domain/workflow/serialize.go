package workflow

import (
	"encoding/json"
	"fmt"

	"tabflow/domain/core"
)

// RawField holds a document field verbatim. Unknown fields round-trip
// through load/store untouched instead of being dropped.
type RawField = json.RawMessage

// actionParamKeys maps each known kind to the flat JSON keys its
// parameter struct consumes. Anything else in the action object lands
// in Extra.
var actionParamKeys = map[ActionKind][]string{
	KindRename:         {"old_name", "new_name"},
	KindRetype:         {"column", "target_type"},
	KindFilter:         {"column", "operator", "value"},
	KindDerive:         {"new_column", "formula"},
	KindMerge:          {"other_group_id", "join_keys", "join_type"},
	KindSort:           {"keys"},
	KindGroupAggregate: {"keys", "aggregates"},
	KindDedupe:         {"columns"},
	KindDropColumns:    {"columns"},
	KindFillMissing:    {"column", "method", "value"},
	KindAdjustColumn:   {"column", "formula"},
}

// UnmarshalJSON decodes a flat action object, routing known fields into
// the kind's parameter struct and parking the rest in Extra.
func (a *Action) UnmarshalJSON(data []byte) error {
	var fields map[string]RawField
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	rawKind, ok := fields["kind"]
	if !ok {
		return core.NewMalformedDocumentError("action object has no kind")
	}
	if err := json.Unmarshal(rawKind, &a.Kind); err != nil {
		return core.NewMalformedDocumentError("action kind is not a string")
	}
	if raw, ok := fields["group_id"]; ok {
		if err := json.Unmarshal(raw, &a.GroupID); err != nil {
			return core.NewMalformedDocumentError("action group_id is not a string")
		}
	}

	consumed := map[string]bool{"kind": true, "group_id": true}
	if IsKnownKind(a.Kind) {
		if err := a.decodeParams(data); err != nil {
			return err
		}
		for _, key := range actionParamKeys[a.Kind] {
			consumed[key] = true
		}
	}

	for key, raw := range fields {
		if consumed[key] {
			continue
		}
		if a.Extra == nil {
			a.Extra = make(map[string]RawField)
		}
		a.Extra[key] = raw
	}
	return nil
}

func (a *Action) decodeParams(data []byte) error {
	var err error
	switch a.Kind {
	case KindRename:
		a.Rename = &RenameParams{}
		err = json.Unmarshal(data, a.Rename)
	case KindRetype:
		a.Retype = &RetypeParams{}
		err = json.Unmarshal(data, a.Retype)
	case KindFilter:
		a.Filter = &FilterParams{}
		err = json.Unmarshal(data, a.Filter)
	case KindDerive:
		a.Derive = &DeriveParams{}
		err = json.Unmarshal(data, a.Derive)
	case KindMerge:
		a.Merge = &MergeParams{}
		err = json.Unmarshal(data, a.Merge)
	case KindSort:
		a.Sort = &SortParams{}
		err = json.Unmarshal(data, a.Sort)
	case KindGroupAggregate:
		a.GroupAggregate = &GroupAggregateParams{}
		err = json.Unmarshal(data, a.GroupAggregate)
	case KindDedupe:
		a.Dedupe = &DedupeParams{}
		err = json.Unmarshal(data, a.Dedupe)
	case KindDropColumns:
		a.DropColumns = &DropColumnsParams{}
		err = json.Unmarshal(data, a.DropColumns)
	case KindFillMissing:
		a.FillMissing = &FillMissingParams{}
		err = json.Unmarshal(data, a.FillMissing)
	case KindAdjustColumn:
		a.AdjustColumn = &AdjustColumnParams{}
		err = json.Unmarshal(data, a.AdjustColumn)
	}
	if err != nil {
		return core.NewMalformedDocumentError("invalid " + string(a.Kind) + " parameters: " + err.Error())
	}
	return nil
}

// params returns the populated parameter struct for known kinds
func (a Action) params() interface{} {
	switch a.Kind {
	case KindRename:
		if a.Rename != nil {
			return a.Rename
		}
	case KindRetype:
		if a.Retype != nil {
			return a.Retype
		}
	case KindFilter:
		if a.Filter != nil {
			return a.Filter
		}
	case KindDerive:
		if a.Derive != nil {
			return a.Derive
		}
	case KindMerge:
		if a.Merge != nil {
			return a.Merge
		}
	case KindSort:
		if a.Sort != nil {
			return a.Sort
		}
	case KindGroupAggregate:
		if a.GroupAggregate != nil {
			return a.GroupAggregate
		}
	case KindDedupe:
		if a.Dedupe != nil {
			return a.Dedupe
		}
	case KindDropColumns:
		if a.DropColumns != nil {
			return a.DropColumns
		}
	case KindFillMissing:
		if a.FillMissing != nil {
			return a.FillMissing
		}
	case KindAdjustColumn:
		if a.AdjustColumn != nil {
			return a.AdjustColumn
		}
	}
	return nil
}

// MarshalJSON is the exact inverse of UnmarshalJSON: known parameters
// and preserved Extra fields flatten back into one object.
func (a Action) MarshalJSON() ([]byte, error) {
	out := make(map[string]RawField, len(a.Extra)+4)
	for key, raw := range a.Extra {
		out[key] = raw
	}

	if p := a.params(); p != nil {
		encoded, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		var flat map[string]RawField
		if err := json.Unmarshal(encoded, &flat); err != nil {
			return nil, err
		}
		for key, raw := range flat {
			out[key] = raw
		}
	}

	kind, err := json.Marshal(a.Kind)
	if err != nil {
		return nil, err
	}
	out["kind"] = kind
	if !core.ID(a.GroupID).IsEmpty() {
		groupID, err := json.Marshal(a.GroupID)
		if err != nil {
			return nil, err
		}
		out["group_id"] = groupID
	}
	return json.Marshal(out)
}

// workflowDocKeys are the top-level keys this build understands
var workflowDocKeys = map[string]bool{
	"id": true, "name": true, "version": true,
	"created_at": true, "groups": true, "actions": true,
}

type workflowDoc struct {
	ID        core.WorkflowID `json:"id"`
	Name      string          `json:"name"`
	Version   string          `json:"version"`
	CreatedAt core.Timestamp  `json:"created_at"`
	Groups    []Group         `json:"groups"`
	Actions   []Action        `json:"actions"`
}

// MarshalJSON flattens the workflow plus preserved Extra fields
func (w Workflow) MarshalJSON() ([]byte, error) {
	out := make(map[string]RawField, len(w.Extra)+6)
	for key, raw := range w.Extra {
		out[key] = raw
	}
	doc := workflowDoc{
		ID:        w.ID,
		Name:      w.Name,
		Version:   w.Version,
		CreatedAt: w.CreatedAt,
		Groups:    w.Groups,
		Actions:   w.Actions,
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var flat map[string]RawField
	if err := json.Unmarshal(encoded, &flat); err != nil {
		return nil, err
	}
	for key, raw := range flat {
		out[key] = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a workflow document, keeping unknown top-level
// fields in Extra
func (w *Workflow) UnmarshalJSON(data []byte) error {
	var fields map[string]RawField
	if err := json.Unmarshal(data, &fields); err != nil {
		return core.NewMalformedDocumentError(err.Error())
	}
	var doc workflowDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return core.NewMalformedDocumentError(err.Error())
	}
	w.ID = doc.ID
	w.Name = doc.Name
	w.Version = doc.Version
	w.CreatedAt = doc.CreatedAt
	w.Groups = doc.Groups
	w.Actions = doc.Actions
	for key, raw := range fields {
		if workflowDocKeys[key] {
			continue
		}
		if w.Extra == nil {
			w.Extra = make(map[string]RawField)
		}
		w.Extra[key] = raw
	}
	return nil
}

// Serialize renders the workflow as its persisted JSON document
func Serialize(w *Workflow) ([]byte, error) {
	return json.MarshalIndent(w, "", "  ")
}

// Deserialize parses and validates a workflow document. It is the
// exact inverse of Serialize for every field this build understands,
// and preserves the rest opaquely.
func Deserialize(data []byte) (*Workflow, error) {
	var fields map[string]RawField
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, core.NewMalformedDocumentError(err.Error())
	}
	if _, ok := fields["groups"]; !ok {
		return nil, core.NewMalformedDocumentError("missing required field groups")
	}
	if _, ok := fields["actions"]; !ok {
		return nil, core.NewMalformedDocumentError("missing required field actions")
	}

	w := &Workflow{}
	if err := json.Unmarshal(data, w); err != nil {
		return nil, err
	}
	if w.Name == "" {
		return nil, core.NewMalformedDocumentError("missing required field name")
	}
	if w.ID.IsEmpty() {
		w.ID = core.WorkflowID(core.NewID())
	}

	// Every action must point at a declared group; unknown kinds are
	// preserved but still need a resolvable binding to replay later.
	for i, a := range w.Actions {
		if core.ID(a.GroupID).IsEmpty() {
			return nil, core.NewMalformedDocumentError(fmt.Sprintf("action %d has no group_id", i))
		}
		if _, ok := w.GroupByID(a.GroupID); !ok {
			return nil, core.NewInvalidReferenceError("group", a.GroupID.String())
		}
		if a.Kind == KindMerge && a.Merge != nil {
			if _, ok := w.GroupByID(a.Merge.OtherGroupID); !ok {
				return nil, core.NewInvalidReferenceError("group", a.Merge.OtherGroupID.String())
			}
		}
	}
	if err := ValidateAcyclic(w); err != nil {
		return nil, err
	}
	return w, nil
}
