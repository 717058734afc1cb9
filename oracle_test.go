package keyoracle

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/gorilla/websocket"
	"github.com/keyoracle/keyoracle/hostrpc"
	"github.com/keyoracle/keyoracle/keychain"
	"github.com/keyoracle/keyoracle/prompt"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   uint64
}

func (c *wsClient) call(method string, params, result any) string {
	c.t.Helper()

	c.id++
	req := map[string]any{"id": c.id, "method": method}
	if params != nil {
		req["params"] = params
	}
	require.NoError(c.t, c.conn.WriteJSON(req))

	require.NoError(c.t, c.conn.SetReadDeadline(
		time.Now().Add(10*time.Second),
	))

	resp := &hostrpc.ResponseFrame{Result: result}
	require.NoError(c.t, c.conn.ReadJSON(resp))
	require.Equal(c.t, c.id, resp.ID)

	return resp.Error
}

// TestOracleEndToEnd creates a wallet, derives keys and locks it through the
// websocket endpoint.
func TestOracleEndToEnd(t *testing.T) {
	t.Parallel()

	const (
		email      = "alice@example.com"
		passphrase = "correct horse"
	)
	token0 := bytes.Repeat([]byte{0x01}, keychain.DefaultTokenLength)

	cfg := DefaultConfig()
	cfg.StretchIterations = 16
	cfg.ActiveNetParams = &chaincfg.RegressionNetParams
	cfg.Host.Listen = "127.0.0.1:0"
	cfg.Prometheus.Enable = true
	cfg.Prometheus.Listen = "127.0.0.1:0"

	prompter := &prompt.Mock{
		NewPassphrases: []fn.Option[prompt.PassphrasePair]{
			fn.Some(prompt.PassphrasePair{
				First: passphrase, Second: passphrase,
			}),
		},
	}

	oracle, err := NewOracle(&cfg, prompter)
	require.NoError(t, err)
	require.NotNil(t, oracle.Metrics)
	require.NoError(t, oracle.Start())
	defer oracle.Stop()

	url := "ws://" + oracle.Host.Addr().String() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	c := &wsClient{t: t, conn: conn}

	var status hostrpc.StatusResult
	require.Empty(t, c.call("status", nil, &status))
	require.Equal(t, "locked", status.State)

	errMsg := c.call("generatekeys", map[string]any{
		"tokens": []hostrpc.HexBytes{token0},
	}, nil)
	require.Contains(t, errMsg, "not unlocked")

	var origin hostrpc.CreateOriginResult
	require.Empty(t, c.call("createorigin", map[string]any{
		"email": email,
		"token": hostrpc.HexBytes(token0),
	}, &origin))
	require.Len(t, origin.PubKey, 65)

	require.Empty(t, c.call("status", nil, &status))
	require.Equal(t, "unlocked", status.State)

	var keys hostrpc.GenerateKeysResult
	require.Empty(t, c.call("generatekeys", map[string]any{
		"tokens": []hostrpc.HexBytes{token0},
		"start":  4,
	}, &keys))
	require.Equal(t, []hostrpc.HexBytes{origin.PubKey}, keys.PubKeys)
	require.EqualValues(t, 4, keys.Start)

	require.Empty(t, c.call("lock", nil, nil))
	require.Empty(t, c.call("status", nil, &status))
	require.Equal(t, "locked", status.State)
}
