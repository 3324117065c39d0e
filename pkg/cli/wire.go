package cli

import (
	"context"
	"database/sql"
	"errors"

	internaldb "loan-pipeline/internal/db"
	"loan-pipeline/internal/db/repository"
	"loan-pipeline/internal/domain"
	"loan-pipeline/internal/loader"
	"loan-pipeline/internal/mirror"
	"loan-pipeline/internal/service/ingestion"
	"loan-pipeline/internal/snapshot"
	"loan-pipeline/internal/source"
)

// ledger is the opened run ledger: a single-writer pool for recording runs
// and a read pool for listing them.
type ledger struct {
	writeDB *sql.DB
	readDB  *sql.DB
	Writer  *repository.IngestionRunRepo
	Reader  *repository.IngestionRunRepo
}

func openLedger(path string) (*ledger, error) {
	writeDB, readDB, err := internaldb.OpenSQLitePair(path, 0)
	if err != nil {
		return nil, err
	}
	if err := internaldb.RunMigrations(writeDB); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, err
	}
	return &ledger{
		writeDB: writeDB,
		readDB:  readDB,
		Writer:  repository.NewIngestionRunRepo(writeDB),
		Reader:  repository.NewIngestionRunRepo(readDB),
	}, nil
}

func (l *ledger) Close() error {
	if l == nil {
		return nil
	}
	return errors.Join(l.readDB.Close(), l.writeDB.Close())
}

// ingestionService builds the ingestion service. A ledger that cannot be
// opened is logged and skipped; it never blocks an ingestion. workers bounds
// concurrent source parsing, 0 keeps the loader default.
func (a *app) ingestionService(ledgerPath string, workers int) (*ingestion.IngestionService, *ledger) {
	var runs domain.IngestionRunRepository
	led, err := openLedger(ledgerPath)
	if err != nil {
		a.logger.Warn("run ledger unavailable, run will not be recorded",
			"path", ledgerPath, "error", err)
		led = nil
	} else {
		runs = led.Writer
	}

	mirrors := func(ctx context.Context, bucket string) (domain.ObjectMirror, error) {
		return mirror.New(ctx, a.cfg, bucket)
	}
	svc := ingestion.NewIngestionService(
		source.NewLoader(a.logger, source.WithWorkers(workers)),
		snapshot.NewWriter(a.logger),
		loader.New(a.logger),
		runs,
		mirrors,
		a.logger,
	)
	return svc, led
}
