//go:build cgo

package main

import (
	"context"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/backend/doltbackend"
)

func openDoltBackend(ctx context.Context, dir, database string) (backend.Backend, error) {
	return doltbackend.Open(ctx, dir, database)
}
