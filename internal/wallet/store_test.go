package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CurrentChecksLiveness(t *testing.T) {
	store := NewStore()

	_, err := store.Current()
	assert.ErrorIs(t, err, ErrNotConnected)

	conn := &fakeConnector{connected: true, address: "addr"}
	store.Set(conn)

	got, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, "addr", got.Address())

	// Connector still set but reports disconnected
	conn.connected = false
	_, err = store.Current()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestStore_StateSnapshot(t *testing.T) {
	store := NewStore()
	assert.Equal(t, State{}, store.State())

	store.Set(&fakeConnector{connected: true, address: "addr"})
	assert.Equal(t, State{Address: "addr", Connected: true}, store.State())

	store.Clear()
	assert.Equal(t, State{}, store.State())
}

func TestStore_OnChangeFiresOnSetAndClear(t *testing.T) {
	store := NewStore()

	var states []State
	store.OnChange(func(s State) {
		states = append(states, s)
	})

	store.Set(&fakeConnector{connected: true, address: "addr"})
	store.Clear()

	require.Len(t, states, 2)
	assert.Equal(t, State{Address: "addr", Connected: true}, states[0])
	// Disconnect carries the previous address so session cleanup can find it
	assert.Equal(t, State{Address: "addr", Connected: false}, states[1])
}

func TestStore_DisconnectAddressNotReusedAcrossSessions(t *testing.T) {
	store := NewStore()

	var states []State
	store.OnChange(func(s State) {
		states = append(states, s)
	})

	store.Set(&fakeConnector{connected: true, address: "addr-1"})
	store.Clear()
	// A second Clear without a connect in between has no address to report
	store.Clear()

	store.Set(&fakeConnector{connected: true, address: "addr-2"})
	store.Clear()

	require.Len(t, states, 5)
	assert.Equal(t, "addr-1", states[1].Address)
	assert.Equal(t, "", states[2].Address)
	assert.Equal(t, "addr-2", states[4].Address)
}
