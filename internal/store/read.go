package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/frontbase/internal/ir"
)

// Filter selects documents whose top-level fields equal the given values.
// A Null value matches documents where the field is null or absent.
type Filter map[string]ir.Value

// ListModels returns every stored model ordered by key.
func (s *Store) ListModels(ctx context.Context) ([]ir.Model, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT definition FROM models ORDER BY key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	models := []ir.Model{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		m, err := unmarshalModel(data)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return models, nil
}

// LoadModels returns every stored model indexed by key.
func (s *Store) LoadModels(ctx context.Context) (ir.Models, error) {
	models, err := s.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	return ir.NewModels(models...), nil
}

// ListProcesses returns every stored process definition ordered by id.
func (s *Store) ListProcesses(ctx context.Context) ([]ir.ProcessSpec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT definition FROM processes ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query processes: %w", err)
	}
	defer rows.Close()

	procs := []ir.ProcessSpec{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		p, err := unmarshalProcess(data)
		if err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processes: %w", err)
	}
	return procs, nil
}

// ReadDocument retrieves a document by id.
// Returns ErrNotFound if it does not exist.
func (s *Store) ReadDocument(ctx context.Context, id string) (ir.Document, error) {
	doc, err := scanDocumentRow(s.db.QueryRowContext(ctx, `
		SELECT id, model, fields FROM documents WHERE id = ?
	`, id))
	if err != nil {
		return ir.Document{}, fmt.Errorf("read document %s: %w", id, err)
	}
	return doc, nil
}

// FindDocument retrieves a document of model by id.
// Returns ErrNotFound if it does not exist or belongs to another model.
func (s *Store) FindDocument(ctx context.Context, model, id string) (ir.Document, error) {
	doc, err := s.ReadDocument(ctx, id)
	if err != nil {
		return ir.Document{}, err
	}
	if doc.Model != model {
		return ir.Document{}, fmt.Errorf("read document %s: model %s: %w", id, model, ErrNotFound)
	}
	return doc, nil
}

// FindDocuments returns the documents of model matching filter, ordered by
// id. A nil filter returns every document of the model.
func (s *Store) FindDocuments(ctx context.Context, model string, filter Filter) ([]ir.Document, error) {
	query, args, err := buildFindQuery(model, filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []ir.Document{}
	for rows.Next() {
		var doc ir.Document
		var data string
		if err := rows.Scan(&doc.ID, &doc.Model, &data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if doc.Fields, err = unmarshalFields(data); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// CountDocuments returns the number of documents of model.
func (s *Store) CountDocuments(ctx context.Context, model string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE model = ?
	`, model).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// buildFindQuery translates a Filter into json_extract comparisons.
// Keys are applied in sorted order so the generated SQL is stable.
func buildFindQuery(model string, filter Filter) (string, []any, error) {
	var b strings.Builder
	b.WriteString("SELECT id, model, fields FROM documents WHERE model = ?")
	args := []any{model}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if key == "" || strings.ContainsAny(key, `"\`) {
			return "", nil, fmt.Errorf("invalid filter key %q", key)
		}
		path := `$."` + key + `"`

		switch v := filter[key].(type) {
		case nil, ir.Null:
			b.WriteString(" AND json_extract(fields, ?) IS NULL")
			args = append(args, path)
		case ir.String:
			b.WriteString(" AND json_type(fields, ?) = 'text' AND json_extract(fields, ?) = ?")
			args = append(args, path, path, string(v))
		case ir.Number:
			b.WriteString(" AND json_type(fields, ?) IN ('integer', 'real') AND json_extract(fields, ?) = ?")
			args = append(args, path, path, float64(v))
		case ir.Bool:
			jsonType := "false"
			if v {
				jsonType = "true"
			}
			b.WriteString(" AND json_type(fields, ?) = ?")
			args = append(args, path, jsonType)
		default:
			return "", nil, errors.New("filter supports only scalar values")
		}
	}

	b.WriteString(" ORDER BY id COLLATE BINARY ASC")
	return b.String(), args, nil
}
