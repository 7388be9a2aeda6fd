package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/liveauction/go/internal/auction"
	"github.com/mcdev12/liveauction/go/internal/config"
	"github.com/mcdev12/liveauction/go/internal/realtime"
)

func TestParseItems(t *testing.T) {
	items, err := parseItems([]string{"Vase:10", "Lamp:5:45"})
	require.NoError(t, err)
	assert.Equal(t, []auction.NewItem{
		{Name: "Vase", StartingPrice: 10},
		{Name: "Lamp", StartingPrice: 5, DurationSec: 45},
	}, items)

	for _, bad := range []string{"Vase", ":10", "Vase:ten", "Vase:-1", "Vase:10:0", "a:1:2:3"} {
		_, err := parseItems([]string{bad})
		assert.Error(t, err, bad)
	}
	_, err = parseItems(nil)
	assert.Error(t, err)
}

func TestSetupTransport(t *testing.T) {
	cfg := config.Default()
	cfg.SocketURL = "ws://localhost:4000/ws"
	assert.IsType(t, &realtime.WebSocketTransport{}, setupTransport(cfg))

	cfg.Transport = config.TransportNATS
	assert.IsType(t, &realtime.NATSTransport{}, setupTransport(cfg))
}
