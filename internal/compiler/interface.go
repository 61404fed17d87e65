package compiler

import (
	"context"

	"github.com/mattjoyce/gridflow/internal/configcache"
	"github.com/mattjoyce/gridflow/internal/logdb"
	"github.com/mattjoyce/gridflow/internal/protocol"
)

//go:generate mockgen -destination=mocks/mock_compiler.go -package=mocks github.com/mattjoyce/gridflow/internal/compiler ConfigCache,Discoverer,Auditor

// ConfigCache stores framework configurations by content.
type ConfigCache interface {
	AddConfig(ctx context.Context, content string) (configcache.DocRef, error)
}

// Discoverer reports the output modules a configuration declares.
type Discoverer interface {
	Discover(ctx context.Context, req protocol.Request) (protocol.Response, error)
}

// Auditor records per-request progress messages.
type Auditor interface {
	Post(ctx context.Context, request, msg string, mtype logdb.MessageType) error
}
