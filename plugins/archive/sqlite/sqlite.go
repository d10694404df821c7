package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"qecbench/pkg/contract"
)

// Options: 运行归档配置。
type Options struct {
	// Path: 数据库文件路径（必需）；父目录不存在时自动创建。
	Path string `json:"path"`
}

// Archive 将每次成功运行写入 SQLite（纯 Go 驱动，无 cgo）。
type Archive struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS run (
    run_id TEXT PRIMARY KEY,
    code_name TEXT NOT NULL,
    backend TEXT NOT NULL,
    shots INTEGER NOT NULL,
    started_at TEXT NOT NULL,
    series_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scenario_result (
    run_id TEXT NOT NULL REFERENCES run(run_id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    label TEXT NOT NULL,
    injected_qubit INTEGER,
    logical_error_rate REAL NOT NULL,
    shots INTEGER NOT NULL,
    decode_matched INTEGER NOT NULL,
    decode_misses INTEGER NOT NULL,
    counts_json TEXT NOT NULL,
    PRIMARY KEY (run_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_run_code_name ON run(code_name);
`

// Open 打开（或创建）数据库并建表；可重复调用。
func Open(opts *Options) (*Archive, error) {
	if opts == nil || strings.TrimSpace(opts.Path) == "" {
		return nil, contract.Configf("archive.path", "required")
	}
	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// 单写者
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Store 在单个事务中写入运行与各场景结果。
func (a *Archive) Store(ctx context.Context, rec contract.RunRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("%w: empty run id", contract.ErrInvalidInput)
	}
	series, err := json.Marshal(rec.Series)
	if err != nil {
		return err
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO run (run_id, code_name, backend, shots, started_at, series_json) VALUES (?, ?, ?, ?, ?, ?)`,
		string(rec.RunID), rec.CodeName, rec.Backend, rec.Shots, rec.StartedAt.UTC().Format(time.RFC3339Nano), string(series),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for i, r := range rec.Results {
		counts, err := json.Marshal(r.Counts)
		if err != nil {
			return err
		}
		var injected any
		if q, ok := r.Scenario.Injected(); ok {
			injected = q
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scenario_result (run_id, idx, label, injected_qubit, logical_error_rate, shots, decode_matched, decode_misses, counts_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(rec.RunID), i, r.Scenario.Label, injected, r.LogicalErrorRate, r.Decode.Shots, r.Decode.Matched, r.Decode.Misses, string(counts),
		); err != nil {
			return fmt.Errorf("insert scenario %s: %w", r.Scenario.Label, err)
		}
	}
	return tx.Commit()
}

// Load 读取一次运行（测试与离线分析使用）。未找到返回 ErrInvalidInput。
func (a *Archive) Load(ctx context.Context, run contract.RunID) (contract.RunRecord, error) {
	var rec contract.RunRecord
	var started, series string
	err := a.db.QueryRowContext(ctx,
		`SELECT run_id, code_name, backend, shots, started_at, series_json FROM run WHERE run_id = ?`, string(run),
	).Scan(&rec.RunID, &rec.CodeName, &rec.Backend, &rec.Shots, &started, &series)
	if err == sql.ErrNoRows {
		return rec, fmt.Errorf("%w: run %s not found", contract.ErrInvalidInput, run)
	}
	if err != nil {
		return rec, err
	}
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(series), &rec.Series); err != nil {
		return rec, err
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT label, injected_qubit, logical_error_rate, shots, decode_matched, decode_misses, counts_json
		 FROM scenario_result WHERE run_id = ? ORDER BY idx`, string(run))
	if err != nil {
		return rec, err
	}
	defer rows.Close()
	for rows.Next() {
		var r contract.ScenarioResult
		var injected sql.NullInt64
		var counts string
		if err := rows.Scan(&r.Scenario.Label, &injected, &r.LogicalErrorRate, &r.Decode.Shots, &r.Decode.Matched, &r.Decode.Misses, &counts); err != nil {
			return rec, err
		}
		if injected.Valid {
			q := int(injected.Int64)
			r.Scenario.InjectedErrorQubit = &q
		}
		if err := json.Unmarshal([]byte(counts), &r.Counts); err != nil {
			return rec, err
		}
		rec.Results = append(rec.Results, r)
	}
	return rec, rows.Err()
}

// Close 关闭数据库。
func (a *Archive) Close() error { return a.db.Close() }

var _ contract.Archive = (*Archive)(nil)
