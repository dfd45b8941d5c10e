package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"kgraph/internal/core"
	"kgraph/internal/query"
	"kgraph/internal/rules"
	"kgraph/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS graphs (
	id TEXT PRIMARY KEY,
	exported_at DATETIME NOT NULL,
	fact_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS triples (
	graph_id TEXT NOT NULL,
	subject TEXT NOT NULL,
	predicate TEXT NOT NULL,
	object TEXT NOT NULL,
	origin TEXT NOT NULL,
	rule_id INTEGER,
	seq INTEGER NOT NULL,
	confirmations TEXT,
	UNIQUE(graph_id, subject, predicate, object)
);
CREATE INDEX IF NOT EXISTS idx_triples_subject ON triples(graph_id, subject);
CREATE INDEX IF NOT EXISTS idx_triples_predicate ON triples(graph_id, predicate);
CREATE INDEX IF NOT EXISTS idx_triples_object ON triples(graph_id, object);
CREATE TABLE IF NOT EXISTS rules (
	graph_id TEXT NOT NULL,
	rule_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	name TEXT,
	body TEXT NOT NULL,
	PRIMARY KEY(graph_id, rule_id)
);
`

// SQLiteOptions controls a SQLite export.
type SQLiteOptions struct {
	IncludeRules bool
	Logger       *zap.Logger
}

// SQLite writes snap into the database at path, replacing any earlier
// export of the same graph. The whole export is one transaction.
func SQLite(ctx context.Context, path string, snap core.Snapshot, opts SQLiteOptions) error {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := writeSnapshot(ctx, tx, snap, opts.IncludeRules); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit export: %w", err)
	}
	log.Info("exported snapshot",
		zap.String("path", path),
		zap.String("graph", snap.GraphID),
		zap.Int("facts", len(snap.Facts)))
	return nil
}

func writeSnapshot(ctx context.Context, tx *sql.Tx, snap core.Snapshot, includeRules bool) error {
	for _, table := range []string{"triples", "rules"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE graph_id = ?", snap.GraphID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO graphs (id, exported_at, fact_count) VALUES (?, ?, ?)`,
		snap.GraphID, time.Now().UTC(), len(snap.Facts)); err != nil {
		return fmt.Errorf("failed to record graph: %w", err)
	}

	insert, err := tx.PrepareContext(ctx,
		`INSERT INTO triples (graph_id, subject, predicate, object, origin, rule_id, seq, confirmations)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insert.Close()

	for _, f := range snap.Facts {
		d, err := decodeFact(snap, f)
		if err != nil {
			return err
		}
		var ruleID any
		if !f.IsAsserted() {
			ruleID = f.RuleID
		}
		confirmations, _ := json.Marshal(f.Confirmations)
		if _, err := insert.ExecContext(ctx, snap.GraphID, d.Subject, d.Predicate, d.Object,
			f.Origin.String(), ruleID, f.Seq, string(confirmations)); err != nil {
			return fmt.Errorf("failed to insert %s: %w", d, err)
		}
	}

	if !includeRules {
		return nil
	}
	for _, set := range [][]rules.Rule{snap.Rules, snap.Constraints} {
		for _, r := range set {
			body, err := RenderRule(snap, r)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO rules (graph_id, rule_id, kind, name, body) VALUES (?, ?, ?, ?, ?)`,
				snap.GraphID, r.ID, r.Kind.String(), r.Name, body); err != nil {
				return fmt.Errorf("failed to insert rule %d: %w", r.ID, err)
			}
		}
	}
	return nil
}

func decodeFact(snap core.Snapshot, f store.Fact) (query.DecodedTriple, error) {
	var d query.DecodedTriple
	var err error
	if d.Subject, err = snap.Decode(f.S); err != nil {
		return d, err
	}
	if d.Predicate, err = snap.Decode(f.P); err != nil {
		return d, err
	}
	d.Object, err = snap.Decode(f.O)
	return d, err
}

// RenderRule writes r with decoded terms, in the form
// "?X teaches ?Y => ?X isA professor". Constraints end in "=> violated".
func RenderRule(snap core.Snapshot, r rules.Rule) (string, error) {
	premise, err := renderPatterns(snap, r.Premise)
	if err != nil {
		return "", err
	}
	for _, f := range r.Filters {
		if f.Op == rules.OpUDF {
			premise = append(premise, fmt.Sprintf("udf(?%s)", f.Variable))
			continue
		}
		premise = append(premise, fmt.Sprintf("?%s %s %s", f.Variable, f.Op, f.Value))
	}
	head := "violated"
	if r.Kind == rules.Inference {
		parts, err := renderPatterns(snap, r.Conclusion)
		if err != nil {
			return "", err
		}
		head = strings.Join(parts, ", ")
	}
	return strings.Join(premise, ", ") + " => " + head, nil
}

func renderPatterns(snap core.Snapshot, ps []store.Pattern) ([]string, error) {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		var parts [3]string
		for i, t := range []store.Term{p.S, p.P, p.O} {
			s, err := snap.DecodeTerm(t)
			if err != nil {
				return nil, err
			}
			parts[i] = s
		}
		out = append(out, strings.Join(parts[:], " "))
	}
	return out, nil
}

// ReadTriples returns the exported facts of graphID in insertion order.
func ReadTriples(ctx context.Context, path, graphID string) ([]query.DecodedTriple, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT subject, predicate, object FROM triples WHERE graph_id = ? ORDER BY seq`, graphID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []query.DecodedTriple
	for rows.Next() {
		var d query.DecodedTriple
		if err := rows.Scan(&d.Subject, &d.Predicate, &d.Object); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
