// Package export writes decoded IMU records into DuckDB for ad-hoc
// analysis.
package export

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"iter"
	"os"
	"time"

	"github.com/HarborC/kalibrlib/internal/logging"
	"github.com/HarborC/kalibrlib/internal/models"
	"github.com/labstack/gommon/log"
	"github.com/marcboeker/go-duckdb"
)

// DefaultBatchSize is the number of rows buffered before an Appender flush.
const DefaultBatchSize = 10000

// StoreOptions tunes an ImuStore.
type StoreOptions struct {
	Threads   int
	BatchSize int
}

// ImuStore is a DuckDB database holding one table, imu, with a row per
// record. Rows are buffered and written through the Appender API.
type ImuStore struct {
	db        *sql.DB
	dbPath    string
	batchSize int
	batch     []models.ImuRecord
	count     int
	readOnly  bool
	logger    *log.Logger
}

func connector(dsn string, threads int) (*duckdb.Connector, error) {
	if threads <= 0 {
		threads = 4
	}
	return duckdb.NewConnector(dsn, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA threads=%d", threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// NewImuStore creates a fresh database at dbPath, replacing any file there.
func NewImuStore(dbPath string, opts StoreOptions) (*ImuStore, error) {
	os.Remove(dbPath)

	conn, err := connector(dbPath, opts.Threads)
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	db := sql.OpenDB(conn)

	_, err = db.Exec(`
		CREATE TABLE imu (
			seq      BIGINT NOT NULL,
			stamp_ns BIGINT NOT NULL,
			gyro_x   DOUBLE NOT NULL,
			gyro_y   DOUBLE NOT NULL,
			gyro_z   DOUBLE NOT NULL,
			acc_x    DOUBLE NOT NULL,
			acc_y    DOUBLE NOT NULL,
			acc_z    DOUBLE NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ImuStore{
		db:        db,
		dbPath:    dbPath,
		batchSize: batchSize,
		batch:     make([]models.ImuRecord, 0, batchSize),
		logger:    logging.New("export"),
	}, nil
}

// OpenImuStoreReadOnly opens an existing export for queries.
func OpenImuStoreReadOnly(dbPath string) (*ImuStore, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, err
	}
	conn, err := connector(dbPath+"?access_mode=read_only", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	s := &ImuStore{db: sql.OpenDB(conn), dbPath: dbPath, readOnly: true, logger: logging.New("export")}
	if err := s.db.QueryRow("SELECT count(*) FROM imu").Scan(&s.count); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("reading export: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *ImuStore) Path() string { return s.dbPath }

// Add buffers one record, flushing a full batch.
func (s *ImuStore) Add(rec models.ImuRecord) error {
	if s.readOnly {
		return errors.New("export is read-only")
	}
	s.batch = append(s.batch, rec)
	s.count++
	if len(s.batch) >= s.batchSize {
		return s.flushBatch()
	}
	return nil
}

// flushBatch writes the buffered records with the Appender API.
func (s *ImuStore) flushBatch() error {
	if len(s.batch) == 0 {
		return nil
	}
	start := time.Now()

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "imu")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		base := s.count - len(s.batch)
		for i, rec := range s.batch {
			err := appender.AppendRow(
				int64(base+i),
				rec.Stamp.Nanos(),
				rec.AngularVelocity.X,
				rec.AngularVelocity.Y,
				rec.AngularVelocity.Z,
				rec.LinearAcceleration.X,
				rec.LinearAcceleration.Y,
				rec.LinearAcceleration.Z,
			)
			if err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	s.logger.Debugf("flushed %d rows in %v", len(s.batch), time.Since(start))
	s.batch = s.batch[:0]
	return nil
}

// Finalize flushes remaining rows and indexes the timestamp column.
func (s *ImuStore) Finalize() error {
	if s.readOnly {
		return nil
	}
	if err := s.flushBatch(); err != nil {
		return err
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_imu_stamp ON imu(stamp_ns)"); err != nil {
		return fmt.Errorf("idx_imu_stamp creation failed: %w", err)
	}
	s.logger.Infof("exported %d IMU records to %s", s.count, s.dbPath)
	return nil
}

// Count returns the number of rows in the table.
func (s *ImuStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM imu").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// TimeRange returns the first and last timestamps in ns. ok is false for
// an empty table.
func (s *ImuStore) TimeRange(ctx context.Context) (first, last int64, ok bool, err error) {
	var lo, hi sql.NullInt64
	err = s.db.QueryRowContext(ctx, "SELECT min(stamp_ns), max(stamp_ns) FROM imu").Scan(&lo, &hi)
	if err != nil || !lo.Valid {
		return 0, 0, false, err
	}
	return lo.Int64, hi.Int64, true, nil
}

// Records reads back up to limit records in time order starting at offset.
func (s *ImuStore) Records(ctx context.Context, offset, limit int) ([]models.ImuRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stamp_ns, gyro_x, gyro_y, gyro_z, acc_x, acc_y, acc_z
		 FROM imu ORDER BY stamp_ns, seq LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.ImuRecord, 0, limit)
	for rows.Next() {
		var ns int64
		var rec models.ImuRecord
		if err := rows.Scan(&ns,
			&rec.AngularVelocity.X, &rec.AngularVelocity.Y, &rec.AngularVelocity.Z,
			&rec.LinearAcceleration.X, &rec.LinearAcceleration.Y, &rec.LinearAcceleration.Z); err != nil {
			return nil, err
		}
		rec.Stamp = models.TimeFromNanos(ns)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database. The file is kept.
func (s *ImuStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// WriteAll adds every record of seq, stopping at the first decode error or
// when ctx is done, and finalizes the store.
func WriteAll(ctx context.Context, s *ImuStore, seq iter.Seq2[models.ImuRecord, error]) error {
	for rec, err := range seq {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Add(rec); err != nil {
			return err
		}
	}
	return s.Finalize()
}
