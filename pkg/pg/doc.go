// Package pg connects to PostgreSQL through pgx/v5 and applies goose
// migrations for the delivery ledger.
//
// Config is populated from PG_* environment variables. Connect opens a
// *pgxpool.Pool and pings it, retrying while the database starts up. Migrate
// runs the migrations from an fs.FS, typically one embedded by the package
// that owns the schema, through the same pool. Healthcheck returns a probe
// for the readiness endpoint.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations(), cfg, log); err != nil {
//	    return err
//	}
//
// IsDuplicateKeyError, IsForeignKeyViolationError and IsNotFoundError
// classify pgx errors for storage code.
package pg
