// Package results stores finished experiment runs in a SQLite database so
// that parameter sweeps can be compared after the fact.
package results

import (
	"database/sql"
	"encoding/json"
	"fmt"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"

	"github.com/judinizz/ns3-network-simulations/harness"
	"github.com/judinizz/ns3-network-simulations/internal/logger"
)

// RunRow is one stored run
type RunRow struct {
	ID        string
	Name      string
	Kind      string
	Shape     string
	Strategy  string
	Stop      float64
	ErrorRate float64
	Aggregate float64
	Drops     int
}

type flowRow struct {
	runID    string
	flow     int
	kind     string
	src      string
	dst      string
	port     uint16
	start    float64
	stop     float64
	rxBytes  uint64
	goodput  float64
	sent     int
	received int
}

type cwndRow struct {
	runID  string
	node   int
	socket int
	time   float64
	window uint32
}

// SQLiteRecorder writes runs, per-flow results and congestion window samples
// to a SQLite database.  Rows are buffered and written in batches.
type SQLiteRecorder struct {
	*sql.DB
	runStatement  *sql.Stmt
	flowStatement *sql.Stmt
	cwndStatement *sql.Stmt

	dbName     string
	flowsToDB  []flowRow
	cwndsToDB  []cwndRow
	batchSize  int
	lastRunIDs []string
}

// NewSQLiteRecorder opens (creating if needed) the database at path.
// Buffered rows are flushed when the program exits through atexit.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	rec := &SQLiteRecorder{dbName: path, batchSize: 50000}
	if err := rec.init(); err != nil {
		return nil, err
	}
	atexit.Register(func() {
		if err := rec.Flush(); err != nil {
			logger.RecLog.Errorf("flush at exit: %v", err)
		}
	})
	return rec, nil
}

func (rec *SQLiteRecorder) init() error {
	db, err := sql.Open("sqlite3", rec.dbName)
	if err != nil {
		return err
	}
	rec.DB = db

	tables := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			name        TEXT,
			kind        TEXT,
			shape       TEXT,
			strategy    TEXT,
			stop        REAL,
			error_rate  REAL,
			aggregate   REAL,
			drops       INTEGER,
			scenario    TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS flows (
			run_id      TEXT,
			flow        INTEGER,
			kind        TEXT,
			src         TEXT,
			dst         TEXT,
			port        INTEGER,
			start       REAL,
			stop        REAL,
			rx_bytes    INTEGER,
			goodput     REAL,
			sent        INTEGER,
			received    INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS cwnd (
			run_id      TEXT,
			node        INTEGER,
			socket      INTEGER,
			time        REAL,
			cwnd_bytes  INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS cwnd_run ON cwnd (run_id, node, socket)`,
	}
	for _, stmt := range tables {
		if _, err := rec.Exec(stmt); err != nil {
			return fmt.Errorf("create %s: %w", rec.dbName, err)
		}
	}

	if rec.runStatement, err = rec.Prepare(
		`INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		return err
	}
	if rec.flowStatement, err = rec.Prepare(
		`INSERT INTO flows VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		return err
	}
	rec.cwndStatement, err = rec.Prepare(`INSERT INTO cwnd VALUES (?, ?, ?, ?, ?)`)
	return err
}

// RecordRun stores the run row at once and buffers its flows and samples
func (rec *SQLiteRecorder) RecordRun(res *harness.Result) error {
	runID := xid.New().String()
	sc := res.Scenario
	scJSON, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	aggregate, drops := 0.0, res.Drops
	if res.Goodput != nil {
		aggregate = res.Goodput.Aggregate
	}
	if _, err := rec.runStatement.Exec(runID, sc.Name, sc.Kind, res.Topology.Shape().String(),
		res.Strategy.String(), sc.Stop, sc.ErrorRate, aggregate, drops, string(scJSON)); err != nil {
		return err
	}
	rec.lastRunIDs = append(rec.lastRunIDs, runID)

	goodputs := map[*harness.Flow]harness.FlowGoodput{}
	if res.Goodput != nil {
		for _, fg := range res.Goodput.Flows {
			goodputs[fg.Flow] = fg
		}
	}
	for _, flow := range res.Flows {
		row := flowRow{runID: runID, flow: flow.ID, kind: flow.Kind.String(), src: flow.Src.Name,
			dst: flow.DstAddr.String(), port: flow.Port, start: flow.Start, stop: flow.Stop}
		if fg, present := goodputs[flow]; present {
			row.rxBytes, row.goodput = fg.RxBytes, fg.Bps
		}
		if flow.Client != nil {
			row.sent, row.received = flow.Client.Sent(), flow.Client.Received()
		}
		rec.flowsToDB = append(rec.flowsToDB, row)
	}
	if res.Traces != nil {
		for _, key := range res.Traces.Keys() {
			for _, sample := range res.Traces.Records(key) {
				rec.cwndsToDB = append(rec.cwndsToDB, cwndRow{runID: runID, node: key.NodeID,
					socket: key.SocketID, time: sample.Time, window: sample.Window})
			}
		}
	}
	logger.RecLog.WithFields(logrus.Fields{"run": runID, "flows": len(res.Flows)}).Debug("run recorded")

	if len(rec.flowsToDB)+len(rec.cwndsToDB) >= rec.batchSize {
		return rec.Flush()
	}
	return nil
}

// Flush writes all buffered rows in one transaction
func (rec *SQLiteRecorder) Flush() error {
	if len(rec.flowsToDB) == 0 && len(rec.cwndsToDB) == 0 {
		return nil
	}
	tx, err := rec.Begin()
	if err != nil {
		return err
	}
	flowStmt := tx.Stmt(rec.flowStatement)
	for _, row := range rec.flowsToDB {
		if _, err := flowStmt.Exec(row.runID, row.flow, row.kind, row.src, row.dst, row.port, row.start,
			row.stop, int64(row.rxBytes), row.goodput, row.sent, row.received); err != nil {
			tx.Rollback()
			return err
		}
	}
	cwndStmt := tx.Stmt(rec.cwndStatement)
	for _, row := range rec.cwndsToDB {
		if _, err := cwndStmt.Exec(row.runID, row.node, row.socket, row.time, row.window); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.RecLog.WithFields(logrus.Fields{"flows": len(rec.flowsToDB), "samples": len(rec.cwndsToDB)}).
		Debug("results flushed")
	rec.flowsToDB = nil
	rec.cwndsToDB = nil
	return nil
}

// RunIDs lists the ids of the runs recorded through this recorder, oldest first
func (rec *SQLiteRecorder) RunIDs() []string {
	return rec.lastRunIDs
}

// Runs reads back every stored run, oldest first
func (rec *SQLiteRecorder) Runs() ([]RunRow, error) {
	rows, err := rec.Query(`SELECT id, name, kind, shape, strategy, stop, error_rate, aggregate, drops
		FROM runs ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []RunRow{}
	for rows.Next() {
		var rr RunRow
		if err := rows.Scan(&rr.ID, &rr.Name, &rr.Kind, &rr.Shape, &rr.Strategy, &rr.Stop,
			&rr.ErrorRate, &rr.Aggregate, &rr.Drops); err != nil {
			return nil, err
		}
		runs = append(runs, rr)
	}
	return runs, rows.Err()
}

// Count returns the number of rows stored for a run in table flows or cwnd
func (rec *SQLiteRecorder) Count(table, runID string) (int, error) {
	if table != "flows" && table != "cwnd" {
		return 0, fmt.Errorf("no table %q", table)
	}
	var count int
	err := rec.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE run_id = ?`, runID).Scan(&count)
	return count, err
}

// Close flushes what is buffered and closes the database
func (rec *SQLiteRecorder) Close() error {
	if err := rec.Flush(); err != nil {
		return err
	}
	return rec.DB.Close()
}
