package server

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"

	"github.com/wanjiru/kvs/internal/client"
)

// TestServer runs a set of end-to-end scenarios against a real TCP
// server backed by a temporary store directory.
func TestServer(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, c *client.Client){
		"set then get returns the value":         testSetThenGet,
		"get on a missing key reports not found": testGetMissing,
		"remove then get reports not found":      testRemoveThenGet,
		"removing a missing key fails":           testRemoveMissing,
		"set overwrites an existing value":       testSetOverwrite,
	} {
		t.Run(scenario, func(t *testing.T) {
			c, teardown := setupTest(t)
			defer teardown()
			fn(t, c)
		})
	}
}

func setupTest(t *testing.T) (c *client.Client, teardown func()) {
	t.Helper()

	dir := t.TempDir()
	port := dynaport.Get(1)[0]
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	srv, err := Open(Config{Addr: addr, Dir: dir})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		srv.Serve()
		close(done)
	}()

	return client.New(srv.Addr()), func() {
		srv.Close()
		<-done
	}
}

func testSetThenGet(t *testing.T, c *client.Client) {
	require.NoError(t, c.Set("key1", "value1"))

	value, ok, err := c.Get("key1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value1", value)
}

func testGetMissing(t *testing.T, c *client.Client) {
	_, ok, err := c.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func testRemoveThenGet(t *testing.T, c *client.Client) {
	require.NoError(t, c.Set("key1", "value1"))
	require.NoError(t, c.Remove("key1"))

	_, ok, err := c.Get("key1")
	require.NoError(t, err)
	require.False(t, ok)
}

func testRemoveMissing(t *testing.T, c *client.Client) {
	err := c.Remove("missing")
	require.Error(t, err)
}

func testSetOverwrite(t *testing.T, c *client.Client) {
	require.NoError(t, c.Set("key1", "value1"))
	require.NoError(t, c.Set("key1", "value2"))

	value, ok, err := c.Get("key1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value2", value)
}
