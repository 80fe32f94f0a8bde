package contentstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/sirupsen/logrus"

	"vaultsync/config"
)

// IPFSStore uploads payloads through the IPFS HTTP API.
type IPFSStore struct {
	sh      *shell.Shell
	timeout time.Duration
	logger  *logrus.Logger
}

var _ ContentStore = (*IPFSStore)(nil) // Compile-time interface check

// NewIPFSStore creates a content store talking to the configured IPFS node.
func NewIPFSStore(cfg config.ContentStoreConfig, logger *logrus.Logger) *IPFSStore {
	if logger == nil {
		logger = logrus.New()
	}
	sh := shell.NewShell(cfg.APIAddr)
	timeout := cfg.UploadTimeoutDuration()
	sh.SetTimeout(timeout)
	return &IPFSStore{
		sh:      sh,
		timeout: timeout,
		logger:  logger,
	}
}

// Put uploads the payload and returns its content address. No engine state
// changes before Put succeeds, so a failed upload is always retryable.
func (s *IPFSStore) Put(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	addr, err := s.sh.Add(bytes.NewReader(payload), shell.Pin(true))
	if err != nil {
		return "", fmt.Errorf("failed to upload to content store: %w", err)
	}

	s.logger.WithField("address", addr).Debug("Payload stored")
	return addr, nil
}
