package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{Address: ":0"})
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	config := DefaultConfig(handler)

	assert.Equal(t, ":8080", config.Address)
	assert.Equal(t, 15*time.Second, config.ReadTimeout)
	assert.Equal(t, 15*time.Second, config.WriteTimeout)
	assert.Equal(t, 60*time.Second, config.IdleTimeout)
	assert.Equal(t, 10*time.Second, config.ReadHeaderTimeout)
	assert.Equal(t, 1<<20, config.MaxHeaderBytes)
}

func TestServeAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "hello")
	})

	config := DefaultConfig(handler)
	config.Address = "127.0.0.1:0"

	srv, err := New(config)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- srv.Start()
	}()

	// Wait for the listener to bind
	require.Eventually(t, func() bool {
		return srv.Addr() != config.Address
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after shutdown")
	}
}

func TestStartFailsOnBadAddress(t *testing.T) {
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	config := DefaultConfig(handler)
	config.Address = "256.256.256.256:99999"

	srv, err := New(config)
	require.NoError(t, err)
	assert.Error(t, srv.Start())
}
