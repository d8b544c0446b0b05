package httpfetch

import (
	"context"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jlaffaye/ftp"
	zlog "github.com/rs/zerolog/log"
)

const (
	ftpDefaultPort = "21"
	ftpAnonymous   = "anonymous"
)

// ftpConn is the part of an FTP control connection used for retrieval.
type ftpConn interface {
	Login(user, password string) error
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

type ftpDialer func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error)

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	r, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	c, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, err
	}
	return serverConn{c}, nil
}

// ftpTarget is a parsed ftp:// URL.
type ftpTarget struct {
	addr     string
	user     string
	password string
	path     string
}

func parseFTP(u *url.URL) (ftpTarget, error) {
	t := ftpTarget{
		addr:     u.Host,
		user:     ftpAnonymous,
		password: ftpAnonymous,
		path:     strings.TrimPrefix(u.Path, "/"),
	}
	if u.Hostname() == "" {
		return t, errors.Newf("missing host in %s", u.Redacted())
	}
	if u.Port() == "" {
		t.addr = net.JoinHostPort(u.Hostname(), ftpDefaultPort)
	}
	if u.User != nil {
		t.user = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			t.password = pw
		}
	}
	if t.path == "" {
		return t, errors.Newf("missing path in %s", u.Redacted())
	}
	return t, nil
}

// ftpBody closes the data transfer and then the control connection.
type ftpBody struct {
	io.Reader
	data io.Closer
	conn ftpConn
}

func (b ftpBody) Close() error {
	err := b.data.Close()
	if qerr := b.conn.Quit(); err == nil {
		err = qerr
	}
	return err
}

// openFTP retrieves the file named by an ftp URL. Anonymous login is used
// unless the URL carries credentials. FTP has no content type, so the
// response carries none.
func (c *Client) openFTP(ctx context.Context, rawURL string, u *url.URL) (*Response, error) {
	target, err := parseFTP(u)
	if err != nil {
		return nil, err
	}

	conn, err := c.dialFTP(ctx, target.addr, c.httpClient.Timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", target.addr)
	}
	if err := conn.Login(target.user, target.password); err != nil {
		conn.Quit()
		return nil, errors.Wrapf(err, "failed to log in to %s", target.addr)
	}
	data, err := conn.Retr(target.path)
	if err != nil {
		conn.Quit()
		return nil, errors.Wrapf(err, "failed to retrieve %s", target.path)
	}

	zlog.Debug().Msgf("httpfetch: opened %s", u.Redacted())
	return &Response{
		URL: rawURL,
		Body: ftpBody{
			Reader: io.LimitReader(data, c.maxBytes),
			data:   data,
			conn:   conn,
		},
	}, nil
}
