package download

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
)

// ftpSource fetches files from anonymous FTP servers.
type ftpSource struct {
	timeout time.Duration
}

// ftpAddr returns the host:port and path of an ftp URL.
func ftpAddr(u *url.URL) (string, string, error) {
	if u.Path == "" {
		return "", "", eris.Errorf("download: empty path in %s", u)
	}
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	return host, u.Path, nil
}

// ftpReader closes the transfer and the control connection together.
type ftpReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReader) Read(p []byte) (int, error) { return r.resp.Read(p) }

func (r *ftpReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "download: close ftp transfer")
	}
	return eris.Wrap(quitErr, "download: quit ftp")
}

func (s *ftpSource) open(ctx context.Context, u *url.URL) (io.ReadCloser, int64, error) {
	host, path, err := ftpAddr(u)
	if err != nil {
		return nil, 0, err
	}
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(s.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, 0, transient(eris.Wrapf(err, "download: dial %s", host))
	}
	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		_ = conn.Quit()
		return nil, 0, eris.Wrap(err, "download: ftp login")
	}
	size, err := conn.FileSize(path)
	if err != nil {
		_ = conn.Quit()
		return nil, 0, eris.Wrapf(ErrUnknownSize, "%s: %v", u, err)
	}
	resp, err := conn.Retr(path)
	if err != nil {
		_ = conn.Quit()
		return nil, 0, eris.Wrapf(err, "download: retrieve %s", u)
	}
	return &ftpReader{resp: resp, conn: conn}, size, nil
}
