// Package smb implements the SMB transfer transport.
package smb

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hirochachacha/go-smb2"

	"github.com/printlapse/printlapse/cli/config"
	"github.com/printlapse/printlapse/iox"
	"github.com/printlapse/printlapse/types"
)

// smbPort is the direct-hosted SMB TCP port.
const smbPort = "445"

// Transport copies files to an SMB share using NTLM authentication.
// A fresh connection is dialed per attempt; transfers are rare (one per
// compiled video) and a persistent session would only go stale between them.
type Transport struct {
	cfg config.SMBConfig
}

// New creates an SMB transport from destination addressing.
func New(cfg config.SMBConfig) *Transport {
	return &Transport{cfg: cfg}
}

// Name identifies the protocol.
func (t *Transport) Name() string { return "smb" }

// Transfer copies localPath into the configured share directory.
func (t *Transport) Transfer(ctx context.Context, localPath string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(t.cfg.Server, smbPort))
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", types.ErrTransfer, t.cfg.Server, err)
	}
	defer iox.DiscardClose(conn)

	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     t.cfg.Username,
			Password: t.cfg.Password,
			Domain:   t.cfg.Domain,
		},
	}

	sess, err := dialer.DialContext(ctx, conn)
	if err != nil {
		return fmt.Errorf("%w: smb session: %v", types.ErrTransfer, err)
	}
	defer iox.DiscardErr(sess.Logoff)

	share, err := sess.Mount(t.cfg.Share)
	if err != nil {
		return fmt.Errorf("%w: mount share %q: %v", types.ErrTransfer, t.cfg.Share, err)
	}
	defer iox.DiscardErr(share.Umount)

	remote := remotePath(t.cfg.Path, filepath.Base(localPath))
	if t.cfg.Path != "" {
		if err := share.MkdirAll(toBackslash(t.cfg.Path), 0o755); err != nil {
			return fmt.Errorf("%w: mkdir %q: %v", types.ErrTransfer, t.cfg.Path, err)
		}
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: open %q: %v", types.ErrTransfer, localPath, err)
	}
	defer iox.DiscardClose(src)

	dst, err := share.Create(remote)
	if err != nil {
		return fmt.Errorf("%w: create %q: %v", types.ErrTransfer, remote, err)
	}
	defer iox.DiscardClose(dst)

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: copy to %q: %v", types.ErrTransfer, remote, err)
	}

	return nil
}

// remotePath joins the destination directory and filename with SMB
// backslash separators.
func remotePath(dir, name string) string {
	return toBackslash(path.Join(dir, name))
}

func toBackslash(p string) string {
	return strings.ReplaceAll(p, "/", `\`)
}
