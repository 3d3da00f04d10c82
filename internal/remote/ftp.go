package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/tejusbharadwaj/pvwatch/internal/models"
)

// TokenLayout renders MDTM times as change tokens.
const TokenLayout = "20060102150405"

const (
	DefaultTimeout = 10 * time.Second
	DefaultMaxSize = 64 << 20
)

// FTPConfig holds the fixed connection parameters of the remote file.
type FTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Path     string
	Timeout  time.Duration
	MaxSize  int64
}

// FTPSource reads the tracked file from an FTP server.
type FTPSource struct {
	cfg FTPConfig
}

func NewFTPSource(cfg FTPConfig) *FTPSource {
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	return &FTPSource{cfg: cfg}
}

func (s *FTPSource) addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// connect opens and logs into a session. Every connection the session dials,
// control and data alike, carries a deadline bounded by the timeout and ctx.
func (s *FTPSource) connect(ctx context.Context) (*ftp.ServerConn, error) {
	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dial := func(network, address string) (net.Conn, error) {
		d := net.Dialer{Deadline: deadline}
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}

	c, err := ftp.Dial(s.addr(), ftp.DialWithDialFunc(dial))
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnreachable, s.addr(), err)
	}
	if err := c.Login(s.cfg.User, s.cfg.Password); err != nil {
		c.Quit()
		return nil, fmt.Errorf("%w: login: %v", ErrUnreachable, err)
	}
	return c, nil
}

// Probe returns the modification time of the remote file as a change token.
func (s *FTPSource) Probe(ctx context.Context) (models.ChangeToken, error) {
	c, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	defer c.Quit()

	if !c.IsGetTimeSupported() {
		return "", fmt.Errorf("%w: server does not advertise MDTM", ErrUnsupported)
	}

	mtime, err := c.GetTime(s.cfg.Path)
	if err != nil {
		return "", classifyProbeError(err)
	}
	return models.ChangeToken(mtime.UTC().Format(TokenLayout)), nil
}

// Download retrieves the whole remote file.
func (s *FTPSource) Download(ctx context.Context) ([]byte, error) {
	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Quit()

	resp, err := c.Retr(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: RETR %s: %v", ErrDownloadFailed, s.cfg.Path, err)
	}

	data, err := io.ReadAll(io.LimitReader(resp, s.cfg.MaxSize+1))
	closeErr := resp.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("%w: finishing transfer: %v", ErrDownloadFailed, closeErr)
	}
	if int64(len(data)) > s.cfg.MaxSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrDownloadFailed, s.cfg.MaxSize)
	}
	return data, nil
}

// classifyProbeError maps an MDTM failure onto the error taxonomy. Command
// unknown or not implemented replies mean the server cannot report mtimes.
func classifyProbeError(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case ftp.StatusBadCommand, ftp.StatusNotImplemented, ftp.StatusNotImplementedParameter:
			return fmt.Errorf("%w: MDTM: %v", ErrUnsupported, err)
		}
	}
	return fmt.Errorf("%w: MDTM: %v", ErrUnreachable, err)
}

var _ Source = (*FTPSource)(nil)
