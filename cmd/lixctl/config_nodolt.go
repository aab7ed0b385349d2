//go:build !cgo

package main

import (
	"context"
	"errors"

	"github.com/lixdb/lix/internal/backend"
)

var errDoltRequiresCgo = errors.New("dialect postgres requires a cgo build (dolt backend)")

func openDoltBackend(context.Context, string, string) (backend.Backend, error) {
	return nil, errDoltRequiresCgo
}
