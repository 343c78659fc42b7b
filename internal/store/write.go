package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/frontbase/internal/ir"
)

// SaveModel inserts or replaces a model definition.
func (s *Store) SaveModel(ctx context.Context, m ir.Model) error {
	def, err := marshalDefinition(m)
	if err != nil {
		return fmt.Errorf("save model %s: %w", m.Key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO models (key, definition)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET definition = excluded.definition
	`, m.Key, def)
	if err != nil {
		return fmt.Errorf("save model %s: %w", m.Key, err)
	}
	return nil
}

// SaveProcess inserts or replaces a scheduled-process definition.
func (s *Store) SaveProcess(ctx context.Context, p ir.ProcessSpec) error {
	def, err := marshalDefinition(p)
	if err != nil {
		return fmt.Errorf("save process %s: %w", p.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO processes (id, definition)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET definition = excluded.definition
	`, p.ID, def)
	if err != nil {
		return fmt.Errorf("save process %s: %w", p.ID, err)
	}
	return nil
}

// InsertDocument stores a new document of model and publishes an insert
// event listing every field key. An empty id is replaced by a UUIDv7.
func (s *Store) InsertDocument(ctx context.Context, model, id string, fields ir.Object) (ir.Document, error) {
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}
	fields = fields.Clone()

	data, err := marshalFields(fields)
	if err != nil {
		return ir.Document{}, fmt.Errorf("insert document %s: %w", id, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, model, fields)
		VALUES (?, ?, ?)
	`, id, model, data)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return ir.Document{}, fmt.Errorf("insert document %s: %w", id, ErrDuplicate)
		}
		return ir.Document{}, fmt.Errorf("insert document %s: %w", id, err)
	}

	doc := ir.Document{ID: id, Model: model, Fields: fields}
	s.hub.publish(ir.ChangeEvent{
		Operation:     ir.OperationInsert,
		Model:         model,
		Document:      doc,
		ChangedFields: fields.SortedKeys(),
	})
	return doc, nil
}

// UpdateField sets one field of a document. Returns whether the stored
// value changed.
func (s *Store) UpdateField(ctx context.Context, id, field string, value ir.Value) (bool, error) {
	changed, err := s.UpdateFields(ctx, id, ir.Object{field: value})
	if err != nil {
		return false, err
	}
	return len(changed) > 0, nil
}

// UpdateFields merges values into a document and returns the keys whose
// canonical value changed, sorted. When at least one key changed, the
// update is committed and an update event carrying the full post-change
// document is published. Otherwise nothing is written.
func (s *Store) UpdateFields(ctx context.Context, id string, values ir.Object) ([]string, error) {
	s.writeMu.Lock()
	doc, changed, err := s.updateFields(ctx, id, values)
	s.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		s.hub.publish(ir.ChangeEvent{
			Operation:     ir.OperationUpdate,
			Model:         doc.Model,
			Document:      doc,
			ChangedFields: changed,
		})
	}
	return changed, nil
}

func (s *Store) updateFields(ctx context.Context, id string, values ir.Object) (ir.Document, []string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Document{}, nil, fmt.Errorf("update document %s: begin tx: %w", id, err)
	}
	defer tx.Rollback() // No-op if committed

	doc, err := scanDocumentRow(tx.QueryRowContext(ctx, `
		SELECT id, model, fields FROM documents WHERE id = ?
	`, id))
	if err != nil {
		return ir.Document{}, nil, fmt.Errorf("update document %s: %w", id, err)
	}

	var changed []string
	for key, v := range values {
		if v == nil {
			v = ir.Null{}
		}
		if _, present := doc.Fields[key]; present && ir.Equal(doc.Fields[key], v) {
			continue
		}
		if _, present := doc.Fields[key]; !present && isNull(v) {
			continue
		}
		doc.Fields[key] = v
		changed = append(changed, key)
	}
	if len(changed) == 0 {
		return doc, nil, nil
	}
	sort.Strings(changed)

	data, err := marshalFields(doc.Fields)
	if err != nil {
		return ir.Document{}, nil, fmt.Errorf("update document %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET fields = ?, version = version + 1 WHERE id = ?
	`, data, id); err != nil {
		return ir.Document{}, nil, fmt.Errorf("update document %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return ir.Document{}, nil, fmt.Errorf("update document %s: commit: %w", id, err)
	}
	return doc, changed, nil
}

func isNull(v ir.Value) bool {
	_, ok := v.(ir.Null)
	return ok
}

// scanDocumentRow scans one document row; sql.ErrNoRows becomes ErrNotFound.
func scanDocumentRow(row *sql.Row) (ir.Document, error) {
	var doc ir.Document
	var data string
	if err := row.Scan(&doc.ID, &doc.Model, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Document{}, ErrNotFound
		}
		return ir.Document{}, fmt.Errorf("scan document: %w", err)
	}
	fields, err := unmarshalFields(data)
	if err != nil {
		return ir.Document{}, err
	}
	doc.Fields = fields
	return doc, nil
}
