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

type opKind int

const (
	opExec opKind = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type scriptedOp struct {
	kind    opKind
	query   string
	result  scriptedResult
	columns []string
	values  [][]driver.Value
	err     error
	args    []driver.Value
}

type scriptedResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r scriptedResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r scriptedResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

func execOp(query string, result scriptedResult) scriptedOp {
	return scriptedOp{kind: opExec, query: query, result: result}
}

func queryOp(query string, columns []string, values ...[]driver.Value) scriptedOp {
	return scriptedOp{kind: opQuery, query: query, columns: columns, values: values}
}

func beginOp() scriptedOp  { return scriptedOp{kind: opBegin} }
func commitOp() scriptedOp { return scriptedOp{kind: opCommit} }

// scriptDriver 按顺序校验收到的 SQL 操作，模拟 MySQL 的行为。
type scriptDriver struct {
	mu   sync.Mutex
	ops  []scriptedOp
	seen [][]driver.Value
	idx  int
}

var driverSeq atomic.Int32

func newScriptDB(t *testing.T, ops ...scriptedOp) (*sql.DB, *scriptDriver) {
	t.Helper()
	drv := &scriptDriver{ops: ops}
	name := fmt.Sprintf("script-mysql-%d", driverSeq.Add(1))
	sql.Register(name, drv)
	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open script db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		db.Close()
		drv.mu.Lock()
		defer drv.mu.Unlock()
		if drv.idx != len(drv.ops) {
			t.Errorf("not all operations consumed: %d/%d", drv.idx, len(drv.ops))
		}
	})
	return db, drv
}

func (d *scriptDriver) next(kind opKind, query string, args []driver.NamedValue) (*scriptedOp, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected operation %v: %s", kind, query)
	}
	op := &d.ops[d.idx]
	if op.kind != kind {
		return nil, fmt.Errorf("expected operation %v, got %v", op.kind, kind)
	}
	if op.query != "" && strings.Join(strings.Fields(op.query), " ") != strings.Join(strings.Fields(query), " ") {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	values := make([]driver.Value, len(args))
	for i, a := range args {
		values[i] = a.Value
	}
	d.seen = append(d.seen, values)
	d.idx++
	return op, op.err
}

func (d *scriptDriver) Open(string) (driver.Conn, error) { return &scriptConn{d: d}, nil }

type scriptConn struct{ d *scriptDriver }

func (c *scriptConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}
func (c *scriptConn) Close() error { return nil }
func (c *scriptConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *scriptConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if _, err := c.d.next(opBegin, "", nil); err != nil {
		return nil, err
	}
	return &scriptTx{d: c.d}, nil
}

func (c *scriptConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.d.next(opExec, query, args)
	if err != nil {
		return nil, err
	}
	return op.result, nil
}

func (c *scriptConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.d.next(opQuery, query, args)
	if err != nil {
		return nil, err
	}
	return &scriptRows{columns: op.columns, values: op.values}, nil
}

type scriptTx struct{ d *scriptDriver }

func (t *scriptTx) Commit() error {
	_, err := t.d.next(opCommit, "", nil)
	return err
}

func (t *scriptTx) Rollback() error {
	_, err := t.d.next(opRollback, "", nil)
	return err
}

type scriptRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *scriptRows) Columns() []string { return r.columns }
func (r *scriptRows) Close() error      { return nil }

func (r *scriptRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}
