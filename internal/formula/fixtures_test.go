package formula

import (
	"context"
	"fmt"

	"github.com/roach88/frontbase/internal/ir"
)

// testModels: Contact -account-> Account -owner-> Person.
func testModels() ir.Models {
	return ir.NewModels(
		ir.Model{
			Key:   "Contact",
			Label: "Contact",
			Fields: map[string]ir.FieldDefinition{
				"account":    {Kind: ir.FieldRelationship, Target: "Account"},
				"ghost":      {Kind: ir.FieldRelationship, Target: "Ghost"},
				"isActive":   {Kind: ir.FieldScalar},
				"isVerified": {Kind: ir.FieldScalar},
				"first":      {Kind: ir.FieldScalar},
				"last":       {Kind: ir.FieldScalar},
				"fullName": {
					Kind:       ir.FieldFormula,
					Label:      "Full name",
					Formula:    "[[first]] [[last]]",
					ResultType: "text",
					Delimiter:  "bracket",
				},
			},
		},
		ir.Model{
			Key:   "Account",
			Label: "Account",
			Fields: map[string]ir.FieldDefinition{
				"owner": {Kind: ir.FieldRelationship, Target: "Person"},
				"name":  {Kind: ir.FieldScalar},
			},
		},
		ir.Model{
			Key:   "Person",
			Label: "Person",
			Fields: map[string]ir.FieldDefinition{
				"name":   {Kind: ir.FieldScalar},
				"parent": {Kind: ir.FieldRelationship, Target: "Person"},
			},
		},
	)
}

func testEnv() Env {
	return Env{Models: testModels(), IDs: &SequenceGenerator{}}
}

// mapAccessor serves documents keyed by "model/id".
type mapAccessor map[string]ir.Document

func (m mapAccessor) add(doc ir.Document) mapAccessor {
	m[doc.Model+"/"+doc.ID] = doc
	return m
}

func (m mapAccessor) FindDocument(_ context.Context, model, id string) (ir.Document, error) {
	doc, ok := m[model+"/"+id]
	if !ok {
		return ir.Document{}, fmt.Errorf("%s %s not found", model, id)
	}
	return doc, nil
}

func doc(model, id string, fields map[string]any) ir.Document {
	return ir.Document{ID: id, Model: model, Fields: ir.MustFromAny(fields).(ir.Object)}
}
