package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// stepKind 标识脚本化数据库期望的下一步操作。
type stepKind string

const (
	stepExec     stepKind = "exec"
	stepQuery    stepKind = "query"
	stepBegin    stepKind = "begin"
	stepCommit   stepKind = "commit"
	stepRollback stepKind = "rollback"
)

type step struct {
	kind    stepKind
	query   string
	columns []string
	rows    [][]driver.Value
	err     error
}

func expectExec(query string) step { return step{kind: stepExec, query: query} }

func expectQuery(query string, columns []string, rows ...[]driver.Value) step {
	return step{kind: stepQuery, query: query, columns: columns, rows: rows}
}

func expectBegin() step    { return step{kind: stepBegin} }
func expectCommit() step   { return step{kind: stepCommit} }
func expectRollback() step { return step{kind: stepRollback} }

func (s step) failing(err error) step {
	s.err = err
	return s
}

// scriptedDriver 按顺序回放期望的操作，并记录每次调用的参数。
type scriptedDriver struct {
	mu    sync.Mutex
	steps []step
	pos   int
	args  [][]driver.Value
}

var scriptedSeq atomic.Int32

func newScriptedDB(t *testing.T, steps ...step) (*sql.DB, *scriptedDriver) {
	t.Helper()
	drv := &scriptedDriver{steps: steps}
	name := fmt.Sprintf("scripted-mysql-%d", scriptedSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open scripted db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db, drv
}

func (d *scriptedDriver) done(t *testing.T) {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pos != len(d.steps) {
		t.Fatalf("consumed %d of %d scripted steps", d.pos, len(d.steps))
	}
}

func (d *scriptedDriver) take(kind stepKind, query string, args []driver.NamedValue) (step, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pos >= len(d.steps) {
		return step{}, fmt.Errorf("unexpected %s %q", kind, query)
	}
	next := d.steps[d.pos]
	if next.kind != kind {
		return step{}, fmt.Errorf("step %d: want %s, got %s", d.pos, next.kind, kind)
	}
	if next.query != "" && squash(next.query) != squash(query) {
		return step{}, fmt.Errorf("step %d: want query %q, got %q", d.pos, squash(next.query), squash(query))
	}
	d.pos++
	if kind == stepExec || kind == stepQuery {
		values := make([]driver.Value, len(args))
		for i, arg := range args {
			values[i] = arg.Value
		}
		d.args = append(d.args, values)
	}
	return next, next.err
}

func (d *scriptedDriver) Open(string) (driver.Conn, error) { return &scriptedConn{drv: d}, nil }

type scriptedConn struct{ drv *scriptedDriver }

func (c *scriptedConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *scriptedConn) Close() error { return nil }

func (c *scriptedConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *scriptedConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if _, err := c.drv.take(stepBegin, "", nil); err != nil {
		return nil, err
	}
	return scriptedTx{drv: c.drv}, nil
}

func (c *scriptedConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if _, err := c.drv.take(stepExec, query, args); err != nil {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

func (c *scriptedConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	s, err := c.drv.take(stepQuery, query, args)
	if err != nil {
		return nil, err
	}
	return &scriptedRows{columns: s.columns, rows: s.rows}, nil
}

func (c *scriptedConn) Ping(context.Context) error { return nil }

type scriptedTx struct{ drv *scriptedDriver }

func (t scriptedTx) Commit() error {
	_, err := t.drv.take(stepCommit, "", nil)
	return err
}

func (t scriptedTx) Rollback() error {
	_, err := t.drv.take(stepRollback, "", nil)
	return err
}

type scriptedRows struct {
	columns []string
	rows    [][]driver.Value
	next    int
}

func (r *scriptedRows) Columns() []string { return r.columns }
func (r *scriptedRows) Close() error      { return nil }

func (r *scriptedRows) Next(dest []driver.Value) error {
	if r.next >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.next])
	r.next++
	return nil
}

func squash(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
