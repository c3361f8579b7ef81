package models

import (
	"context"
	"fmt"

	"github.com/conduit-lang/trident/internal/orm/record"
	"github.com/conduit-lang/trident/internal/orm/schema"
)

const (
	methodFieldValueWires = "wires_for_field_value"
	methodPlanWires       = "wires_for_plan"
)

// fieldValueWires returns the wires leaving or entering a field value
func fieldValueWires(ctx context.Context, s schema.Session, _ *record.Record, target string, params ...interface{}) (interface{}, error) {
	id, err := singleParam(params)
	if err != nil || id == nil {
		return []interface{}{}, err
	}
	if s == nil {
		return nil, schema.ErrNoSession
	}

	out, err := s.Where(ctx, target, map[string]interface{}{"from_id": id})
	if err != nil {
		return nil, fmt.Errorf("wires from %v: %w", id, err)
	}
	in, err := s.Where(ctx, target, map[string]interface{}{"to_id": id})
	if err != nil {
		return nil, fmt.Errorf("wires to %v: %w", id, err)
	}
	return append(schema.Sequence(out), schema.Sequence(in)...), nil
}

// planWires returns the wires whose ends both belong to field values of the
// plan's operations
func planWires(ctx context.Context, s schema.Session, _ *record.Record, target string, params ...interface{}) (interface{}, error) {
	id, err := singleParam(params)
	if err != nil || id == nil {
		return []interface{}{}, err
	}
	if s == nil {
		return nil, schema.ErrNoSession
	}

	assocs, err := s.Where(ctx, PlanAssociation, map[string]interface{}{"plan_id": id})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", PlanAssociation, err)
	}
	opIDs := collect(schema.Sequence(assocs), "operation_id")
	if len(opIDs) == 0 {
		return []interface{}{}, nil
	}

	fvs, err := s.Where(ctx, FieldValue, map[string]interface{}{
		"parent_class": Operation,
		"parent_id":    opIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", FieldValue, err)
	}
	fvIDs := collect(schema.Sequence(fvs), record.IDField)
	if len(fvIDs) == 0 {
		return []interface{}{}, nil
	}

	wires, err := s.Where(ctx, target, map[string]interface{}{"from_id": fvIDs})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", target, err)
	}

	member := make(map[string]bool, len(fvIDs))
	for _, fv := range fvIDs {
		member[fmt.Sprint(fv)] = true
	}
	inPlan := []interface{}{}
	for _, w := range schema.Sequence(wires) {
		if member[fmt.Sprint(schema.RawAttr(w, "to_id"))] {
			inPlan = append(inPlan, w)
		}
	}
	return inPlan, nil
}

func singleParam(params []interface{}) (interface{}, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("%w: expected 1 param, got %d", schema.ErrBadParams, len(params))
	}
	return params[0], nil
}

// collect gathers the non-nil values of an attribute across raw values
func collect(values []interface{}, name string) []interface{} {
	var out []interface{}
	for _, v := range values {
		if attr := schema.RawAttr(v, name); attr != nil {
			out = append(out, attr)
		}
	}
	return out
}
