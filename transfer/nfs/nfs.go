// Package nfs implements the NFSv3 transfer transport.
package nfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	nfsc "github.com/vmware/go-nfs-client/nfs"
	"github.com/vmware/go-nfs-client/nfs/rpc"

	"github.com/printlapse/printlapse/cli/config"
	"github.com/printlapse/printlapse/iox"
	"github.com/printlapse/printlapse/types"
)

// machineName is the AUTH_UNIX machine name sent with NFS requests.
const machineName = "printlapse"

// Transport copies files to an NFS export. Like the SMB transport, it
// dials a fresh mount per attempt; attempt-level timeouts belong to the
// NFS client.
type Transport struct {
	cfg config.NFSConfig
}

// New creates an NFS transport from destination addressing.
func New(cfg config.NFSConfig) *Transport {
	return &Transport{cfg: cfg}
}

// Name identifies the protocol.
func (t *Transport) Name() string { return "nfs" }

// Transfer copies localPath into the configured export directory.
// The context is accepted for contract symmetry; the NFS client bounds
// each RPC with its own timeouts.
func (t *Transport) Transfer(_ context.Context, localPath string) error {
	mount, err := nfsc.DialMount(t.cfg.Server)
	if err != nil {
		return fmt.Errorf("%w: dial mountd on %s: %v", types.ErrTransfer, t.cfg.Server, err)
	}
	defer iox.DiscardClose(mount)

	auth := rpc.NewAuthUnix(machineName, uint32(os.Getuid()), uint32(os.Getgid()))
	target, err := mount.Mount(t.cfg.Export, auth.Auth())
	if err != nil {
		return fmt.Errorf("%w: mount export %q: %v", types.ErrTransfer, t.cfg.Export, err)
	}
	defer iox.DiscardClose(target)

	if t.cfg.Path != "" {
		// Exists errors are fine; any real failure surfaces on OpenFile.
		_, _ = target.Mkdir(t.cfg.Path, 0o755)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: open %q: %v", types.ErrTransfer, localPath, err)
	}
	defer iox.DiscardClose(src)

	remote := path.Join(t.cfg.Path, filepath.Base(localPath))
	dst, err := target.OpenFile(remote, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %q: %v", types.ErrTransfer, remote, err)
	}
	defer iox.DiscardClose(dst)

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: copy to %q: %v", types.ErrTransfer, remote, err)
	}

	return nil
}
