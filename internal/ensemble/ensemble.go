// Package ensemble implements EnsembleModel: a fixed-size collection
// of independently trained CLMModels, and the mean-aggregation rule that
// turns per-member compressed sizes into a single score the predictor
// consumes.
package ensemble

import (
	"database/sql"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/samuelless/chatclm/internal/clmerr"
	"github.com/samuelless/chatclm/internal/clmmodel"
	"github.com/samuelless/chatclm/internal/dataset"
	"github.com/samuelless/chatclm/internal/tokens"
	"github.com/samuelless/chatclm/internal/trainer"
	"github.com/samuelless/chatclm/internal/trainopts"
)

// EnsembleModel holds E independently trained models. All members share
// the same tokenizer and byte width B by construction — the ensemble never
// inspects either, it only aggregates compressed-size scores.
type EnsembleModel struct {
	members []*clmmodel.CLMModel
}

// Members returns the underlying models. Callers must not mutate the slice.
func (e *EnsembleModel) Members() []*clmmodel.CLMModel {
	return e.members
}

// Size returns the ensemble size E.
func (e *EnsembleModel) Size() int {
	return len(e.members)
}

// Close releases every member's cgo-backed dictionary handles.
func (e *EnsembleModel) Close() {
	for _, m := range e.members {
		m.Close()
	}
}

// Train partitions ds into opts.EnsembleSize contiguous chunks via
// Dataset.SplitIntoChunks, trains one CLMModel per chunk in parallel — one
// task per chunk, no shared mutable state — and returns the ensemble in
// chunk order. An empty dataset yields EnsembleSize untrained
// (empty-dictionary) models.
func Train(ds dataset.Dataset, opts trainopts.Options) (*EnsembleModel, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	chunks := make([]dataset.Dataset, opts.EnsembleSize)
	if ds.Len() == 0 {
		for i := range chunks {
			chunks[i] = dataset.FromData(nil)
		}
	} else {
		var err error
		chunks, err = ds.SplitIntoChunks(int(opts.EnsembleSize))
		if err != nil {
			return nil, err
		}
	}

	members := make([]*clmmodel.CLMModel, len(chunks))
	g := new(errgroup.Group)
	g.SetLimit(int(opts.NbThreads))
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			dict, err := trainer.Train(chunk.Data(), opts)
			if err != nil {
				return err
			}
			m, err := clmmodel.FromBuffer(dict)
			if err != nil {
				return err
			}
			members[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &EnsembleModel{members: members}, nil
}

// CompressedSize returns the arithmetic mean of |model.Compress(tokens)|
// across members — the ensemble's score function, consumed directly by
// the predictor.
func (e *EnsembleModel) CompressedSize(seq []tokens.Token) float64 {
	if len(e.members) == 0 {
		return 0
	}
	var sum int
	for _, m := range e.members {
		sum += len(m.Compress(seq))
	}
	return float64(sum) / float64(len(e.members))
}

// Compress returns a slice whose length is the mean compressed size across
// members, rounded to the nearest byte. It satisfies eval.Scorer, which
// only ever inspects the length; the content itself has no single member to
// draw it from once sizes are averaged.
func (e *EnsembleModel) Compress(seq []tokens.Token) []byte {
	return make([]byte, int(e.CompressedSize(seq)+0.5))
}

// CompressTogether is the ensemble-level equivalent of
// clmmodel.CLMModel.CompressTogether: the mean compressed size of
// prompt++suffix across members, rounded to the nearest byte.
func (e *EnsembleModel) CompressTogether(prompt, suffix []tokens.Token) int {
	joined := make([]tokens.Token, 0, len(prompt)+len(suffix))
	joined = append(joined, prompt...)
	joined = append(joined, suffix...)
	return int(e.CompressedSize(joined) + 0.5)
}

// SaveCheckpoint persists every member as an (index, bytes) row in a single
// sqlite container file, matching the original's rusqlite-backed
// checkpoint schema.
func (e *EnsembleModel) SaveCheckpoint(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return clmerr.Wrap(clmerr.Io, fmt.Errorf("open %s: %w", path, err))
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS models (id INTEGER PRIMARY KEY, model BLOB)`); err != nil {
		return clmerr.Wrap(clmerr.Io, fmt.Errorf("create schema: %w", err))
	}
	if _, err := db.Exec(`DELETE FROM models`); err != nil {
		return clmerr.Wrap(clmerr.Io, fmt.Errorf("clear existing rows: %w", err))
	}

	tx, err := db.Begin()
	if err != nil {
		return clmerr.Wrap(clmerr.Io, fmt.Errorf("begin tx: %w", err))
	}
	stmt, err := tx.Prepare(`INSERT INTO models (id, model) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return clmerr.Wrap(clmerr.Io, fmt.Errorf("prepare insert: %w", err))
	}
	for i, m := range e.members {
		if _, err := stmt.Exec(i, m.ToBuffer()); err != nil {
			stmt.Close()
			tx.Rollback()
			return clmerr.Wrap(clmerr.Io, fmt.Errorf("insert member %d: %w", i, err))
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return clmerr.Wrap(clmerr.Io, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// FromCheckpoint reads rows from a sqlite container file written by
// SaveCheckpoint, in index order, and rehydrates each into a CLMModel.
func FromCheckpoint(path string) (*EnsembleModel, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, clmerr.Wrap(clmerr.Io, fmt.Errorf("open %s: %w", path, err))
	}
	defer db.Close()

	rows, err := db.Query(`SELECT id, model FROM models`)
	if err != nil {
		return nil, clmerr.Wrap(clmerr.Parse, fmt.Errorf("query models: %w", err))
	}
	defer rows.Close()

	type row struct {
		id   int
		blob []byte
	}
	var loaded []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.blob); err != nil {
			return nil, clmerr.Wrap(clmerr.Parse, fmt.Errorf("scan model row: %w", err))
		}
		loaded = append(loaded, r)
	}
	if err := rows.Err(); err != nil {
		return nil, clmerr.Wrap(clmerr.Parse, err)
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].id < loaded[j].id })

	members := make([]*clmmodel.CLMModel, len(loaded))
	for i, r := range loaded {
		m, err := clmmodel.FromBuffer(r.blob)
		if err != nil {
			return nil, err
		}
		members[i] = m
	}
	return &EnsembleModel{members: members}, nil
}
