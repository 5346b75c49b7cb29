package store

import (
	"context"
	"database/sql"

	"lendus/pkg/platform/tx"
)

func txContext(sqlTx *sql.Tx) context.Context {
	return tx.WithTx(context.Background(), sqlTx)
}
