// Package remote talks to the server that hosts the PV telemetry file.
//
// A Source exposes two capabilities: Probe returns the file's current change
// token without transferring it, and Download retrieves the whole file. Every
// call opens a fresh session; nothing is cached between calls.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/tejusbharadwaj/pvwatch/internal/models"
)

var (
	// ErrUnreachable covers DNS, connect, login and timeout failures.
	ErrUnreachable = errors.New("remote unreachable")
	// ErrUnsupported means the server exposes no modification time for the file.
	ErrUnsupported = errors.New("remote change token unsupported")
	// ErrDownloadFailed means a transfer started but did not complete.
	ErrDownloadFailed = errors.New("download failed")
)

// Source is a remote location holding the tracked file.
type Source interface {
	Probe(ctx context.Context) (models.ChangeToken, error)
	Download(ctx context.Context) ([]byte, error)
}

// ContentToken derives a change token from file content. It is used when the
// server cannot report modification times.
func ContentToken(data []byte) models.ChangeToken {
	return models.ChangeToken(fmt.Sprintf("xxh-%016x", xxhash.Sum64(data)))
}
