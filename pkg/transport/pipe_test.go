package transport

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipeCrossed(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		a.Write([]byte("ping"))
	}()
	buf := make([]byte, 4)
	_, err := io.ReadFull(b, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))

	go func() {
		b.Write([]byte("pong"))
	}()
	_, err = io.ReadFull(a, buf)
	require.NoError(t, err)
	require.Equal(t, "pong", string(buf))
}

func TestPipeCloseUnblocksReader(t *testing.T) {
	a, b := Pipe()
	errc := make(chan error, 1)
	go func() {
		_, err := b.Read(make([]byte, 1))
		errc <- err
	}()
	require.NoError(t, a.Close())
	require.Error(t, <-errc)
}
