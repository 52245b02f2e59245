package sqlstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// FileFor returns the JSONL file name used for table by Import and Export.
func FileFor(table string) string { return table + ".jsonl" }

// readJSONL returns each non-empty, parseable line of path. Malformed lines
// are skipped. A missing file yields no records.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL writes records to path through a synced temp file and a rename,
// so readers never see a partial file.
func writeJSONL(path string, records []json.RawMessage) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail(fmt.Errorf("writing record: %w", err))
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail(fmt.Errorf("writing newline: %w", err))
		}
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flushing buffer: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Import loads <table>.jsonl files from dir into the database in one
// transaction. Unknown fields are ignored and rows whose id already exists
// are skipped. Imported rows are not published to the change feed. It
// returns the number of rows inserted per table.
func (b *Backend) Import(ctx context.Context, dir string) (map[string]int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil, errClosed
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning import: %w", err)
	}
	defer tx.Rollback()

	counts := make(map[string]int)
	for _, s := range schemas {
		records, err := readJSONL(filepath.Join(dir, FileFor(s.name)))
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			var row types.Row
			if err := json.Unmarshal(rec, &row); err != nil {
				continue
			}
			if row.ID() == "" {
				row["id"] = newUUID()
			}
			for k := range row {
				if !s.has(k) {
					delete(row, k)
				}
			}
			cols, args, err := bindColumns(s, row)
			if err != nil {
				return nil, fmt.Errorf("importing %s %s: %w", s.name, row.ID(), err)
			}
			stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO NOTHING",
				s.name, strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
			res, err := tx.ExecContext(ctx, b.dialect.rebind(stmt), args...)
			if err != nil {
				return nil, fmt.Errorf("importing %s %s: %w", s.name, row.ID(), err)
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				counts[s.name]++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing import: %w", err)
	}
	b.log.Info().Interface("rows", counts).Str("dir", dir).Msg("import complete")
	return counts, nil
}

// Export writes every table to <table>.jsonl in dir, ordered by id. It
// returns the number of rows written per table.
func (b *Backend) Export(ctx context.Context, dir string) (map[string]int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export dir: %w", err)
	}
	counts := make(map[string]int)
	for _, s := range schemas {
		rows, err := b.Select(ctx, s.name, types.Query{})
		if err != nil {
			return nil, err
		}
		records := make([]json.RawMessage, 0, len(rows))
		for _, row := range rows {
			data, err := json.Marshal(row)
			if err != nil {
				return nil, fmt.Errorf("encoding %s %s: %w", s.name, row.ID(), err)
			}
			records = append(records, data)
		}
		if err := writeJSONL(filepath.Join(dir, FileFor(s.name)), records); err != nil {
			return nil, fmt.Errorf("exporting %s: %w", s.name, err)
		}
		counts[s.name] = len(records)
	}
	return counts, nil
}
