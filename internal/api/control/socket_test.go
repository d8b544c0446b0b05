//go:build unix

package control

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emacsmirror/gaplay/internal/app/response"
)

func TestSocketServer_RoundTrip(t *testing.T) {
	sess := newFakeSession()
	b := response.NewBroadcaster(nil)
	defer b.Close()

	path := filepath.Join(t.TempDir(), "ctl.sock")
	srv := NewSocketServer(path, sess, b)
	require.NoError(t, srv.Start())
	defer srv.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	_, err = conn.Write([]byte("load /music/a.mp3\n\npause\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(sess.submitted()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"load /music/a.mp3", "pause"}, sess.submitted())

	waitSubscribers(t, b, 1)
	b.Emit(response.New(response.TagPause))
	b.Emit(response.New(response.TagQuit))
	sess.finish()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "->PAUSE\n", line)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "->QUIT\n", line)

	_, err = reader.ReadString('\n')
	assert.Error(t, err)
}

func TestSocketServer_ReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	b := response.NewBroadcaster(nil)
	defer b.Close()
	srv := NewSocketServer(path, newFakeSession(), b)
	require.NoError(t, srv.Start())

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
