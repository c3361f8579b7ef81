// Package models declares the laboratory inventory and planning model types
// served by the remote store.
package models

import (
	"github.com/conduit-lang/trident/internal/orm/record"
	"github.com/conduit-lang/trident/internal/orm/schema"
)

// Model type names
const (
	User               = "User"
	Group              = "Group"
	Membership         = "Membership"
	SampleType         = "SampleType"
	Sample             = "Sample"
	ObjectType         = "ObjectType"
	Item               = "Item"
	Collection         = "Collection"
	FieldType          = "FieldType"
	AllowableFieldType = "AllowableFieldType"
	FieldValue         = "FieldValue"
	Wire               = "Wire"
	OperationType      = "OperationType"
	Operation          = "Operation"
	Plan               = "Plan"
	PlanAssociation    = "PlanAssociation"
	Job                = "Job"
	JobAssociation     = "JobAssociation"
	DataAssociation    = "DataAssociation"
	Library            = "Library"
	Code               = "Code"
)

// Timestamps are assigned by the store and never sent back
var timestamps = []string{"created_at", "updated_at"}

// Types returns fresh declarations of every model type
func Types() []*schema.ModelType {
	return []*schema.ModelType{
		schema.Model(User).
			Fields("login", "name").
			LoadOnly(timestamps...).
			LoadOnly("password").
			Ignore("password_digest", "remember_token").
			HasManyThrough("groups", Group, Membership, "user_id", "group_id").
			HasMany("plans", Plan, "").
			MustBuild(),

		schema.Model(Group).
			Fields("name", "description").
			LoadOnly(timestamps...).
			HasMany("memberships", Membership, "").
			HasManyThrough("users", User, Membership, "group_id", "user_id").
			MustBuild(),

		schema.Model(Membership).
			Fields("user_id", "group_id").
			HasOne("user", User, "").
			HasOne("group", Group, "").
			MustBuild(),

		schema.Model(SampleType).
			Fields("name", "description").
			LoadOnly(timestamps...).
			HasMany("samples", Sample, "").
			HasManyGeneric("field_types", FieldType).
			MustBuild(),

		schema.Model(Sample).
			Fields("name", "description", "project", "sample_type_id", "user_id").
			LoadOnly(timestamps...).
			HasOne("sample_type", SampleType, "").
			HasOne("user", User, "").
			HasMany("items", Item, "").
			HasManyGeneric("field_values", FieldValue).
			MustBuild(),

		schema.Model(ObjectType).
			Fields("name", "description", "handler", "unit", "min", "max", "cost", "prefix").
			LoadOnly(timestamps...).
			HasMany("items", Item, "").
			MustBuild(),

		schema.Model(Item).
			Fields("location", "quantity", "inuse", "data", "sample_id", "object_type_id").
			LoadOnly(timestamps...).
			HasOne("sample", Sample, "").
			HasOne("object_type", ObjectType, "").
			HasManyGeneric("data_associations", DataAssociation).
			MustBuild(),

		schema.Model(Collection).
			Fields("location", "quantity", "data", "object_type_id").
			LoadOnly(timestamps...).
			LoadAll().
			HasOne("object_type", ObjectType, "").
			HasManyGeneric("data_associations", DataAssociation).
			Many("part_associations", Item, schema.BoundMethod(schema.MethodWhere),
				schema.Query(map[string]string{"collection_id": record.IDField})).
			MustBuild(),

		schema.Model(FieldType).
			Fields("name", "ftype", "array", "choices", "part", "required", "role", "routing",
				"preferred_operation_type_id", "preferred_field_type_id", "parent_class", "parent_id").
			LoadOnly(timestamps...).
			HasMany("allowable_field_types", AllowableFieldType, "").
			MustBuild(),

		schema.Model(AllowableFieldType).
			Fields("field_type_id", "sample_type_id", "object_type_id").
			HasOne("field_type", FieldType, "").
			HasOne("sample_type", SampleType, "").
			HasOne("object_type", ObjectType, "").
			MustBuild(),

		schema.Model(FieldValue).
			Fields("name", "role", "value", "row", "column", "child_sample_id", "child_item_id",
				"field_type_id", "allowable_field_type_id", "parent_class", "parent_id").
			LoadOnly(timestamps...).
			HasOne("field_type", FieldType, "").
			HasOne("allowable_field_type", AllowableFieldType, "").
			HasOne("sample", Sample, "child_sample_id").
			HasOne("item", Item, "child_item_id").
			One("operation", Operation, schema.BoundMethod(schema.MethodFind), parentOf(Operation)).
			Method(methodFieldValueWires, fieldValueWires).
			Many("wires", Wire, schema.BoundMethod(methodFieldValueWires), schema.Attr(record.IDField)).
			Many("successors", Wire, schema.BoundMethod(schema.MethodWhere),
				schema.Query(map[string]string{"from_id": record.IDField})).
			Many("predecessors", Wire, schema.BoundMethod(schema.MethodWhere),
				schema.Query(map[string]string{"to_id": record.IDField})).
			MustBuild(),

		schema.Model(Wire).
			Fields("from_id", "to_id", "active").
			HasOne("source", FieldValue, "from_id").
			HasOne("destination", FieldValue, "to_id").
			MustBuild(),

		schema.Model(OperationType).
			Fields("name", "category", "deployed", "on_the_fly").
			LoadOnly(timestamps...).
			HasMany("operations", Operation, "").
			HasManyGeneric("field_types", FieldType).
			HasManyGeneric("codes", Code).
			MustBuild(),

		schema.Model(Operation).
			Fields("status", "x", "y", "parent_id", "operation_type_id", "user_id").
			LoadOnly(timestamps...).
			Init(defaults(map[string]interface{}{"status": "planning", "x": 0, "y": 0})).
			HasOne("operation_type", OperationType, "").
			HasOne("user", User, "").
			HasManyGeneric("field_values", FieldValue).
			HasManyGeneric("data_associations", DataAssociation).
			HasManyThrough("plans", Plan, PlanAssociation, "operation_id", "plan_id").
			HasManyThrough("jobs", Job, JobAssociation, "operation_id", "job_id").
			MustBuild(),

		schema.Model(Plan).
			Fields("name", "status", "cost_limit", "layout", "user_id").
			LoadOnly(timestamps...).
			Init(defaults(map[string]interface{}{"status": "planning"})).
			HasOne("user", User, "").
			HasMany("plan_associations", PlanAssociation, "").
			HasManyThrough("operations", Operation, PlanAssociation, "plan_id", "operation_id").
			HasManyGeneric("data_associations", DataAssociation).
			Method(methodPlanWires, planWires).
			Many("wires", Wire, schema.BoundMethod(methodPlanWires), schema.Attr(record.IDField)).
			MustBuild(),

		schema.Model(PlanAssociation).
			Fields("plan_id", "operation_id").
			HasOne("plan", Plan, "").
			HasOne("operation", Operation, "").
			MustBuild(),

		schema.Model(Job).
			Fields("state", "pc", "user_id", "group_id", "submitted_by").
			LoadOnly(timestamps...).
			HasOne("user", User, "").
			HasManyThrough("operations", Operation, JobAssociation, "job_id", "operation_id").
			MustBuild(),

		schema.Model(JobAssociation).
			Fields("job_id", "operation_id").
			HasOne("job", Job, "").
			HasOne("operation", Operation, "").
			MustBuild(),

		schema.Model(DataAssociation).
			Fields("key", "object", "upload_id", "parent_class", "parent_id").
			LoadOnly(timestamps...).
			MustBuild(),

		schema.Model(Library).
			Fields("name", "category").
			LoadOnly(timestamps...).
			HasManyGeneric("codes", Code).
			MustBuild(),

		schema.Model(Code).
			Fields("name", "content", "parent_class", "parent_id", "user_id").
			LoadOnly(timestamps...).
			HasOne("user", User, "").
			MustBuild(),
	}
}

// Register defines every model type in reg and validates the relationship graph
func Register(reg *schema.Registry) error {
	for _, t := range Types() {
		reg.Define(t)
	}
	return reg.ValidateAll()
}

// NewRegistry returns a registry holding every model type
func NewRegistry() (*schema.Registry, error) {
	reg := schema.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Names returns every model type name
func Names() []string {
	types := Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name
	}
	return names
}

// parentOf yields the parent_id of a record whose parent_class is model, or nil
func parentOf(model string) schema.Param {
	return schema.FromRecord(func(r *record.Record) (interface{}, error) {
		class, _ := r.Get("parent_class")
		if class != model {
			return nil, nil
		}
		id, _ := r.Get("parent_id")
		return id, nil
	})
}

// defaults returns an init hook filling absent attributes
func defaults(values map[string]interface{}) func(*record.Record) {
	return func(r *record.Record) {
		for k, v := range values {
			if _, ok := r.Get(k); !ok {
				r.Set(k, v)
			}
		}
	}
}
