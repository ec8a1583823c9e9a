package offers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinCatalog(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)
	require.Len(t, c.All(), 6)

	o, err := c.Get("multi 3j")
	require.NoError(t, err)
	assert.Equal(t, 900, o.ContactsTarget)
	assert.Equal(t, []string{"Téléphone", "E-mail", ChannelLinkedIn}, o.DefaultChannels())

	fd, err := c.Get("Full Digital")
	require.NoError(t, err)
	assert.Equal(t, []string{"E-mail"}, fd.DefaultChannels())

	_, err = c.Get("Multi 9J")
	assert.ErrorIs(t, err, ErrUnknownOffer)
}

func TestContext(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)

	ctx, err := c.Context(ContextRequest{Client: "Acme", Offer: "Multi 2J", Cycle: "Semaine 1"})
	require.NoError(t, err)
	assert.Equal(t, 600, ctx.ContactsTarget)
	assert.Equal(t, "Acme", ctx.Client)
	assert.Contains(t, ctx.Channels, ChannelLinkedIn)

	_, err = c.Context(ContextRequest{Offer: "Offre personnalisée", CustomTarget: 50})
	assert.Error(t, err)

	ctx, err = c.Context(ContextRequest{Offer: "Offre personnalisée", CustomTarget: 1600, Channels: []string{"E-mail"}})
	require.NoError(t, err)
	assert.Equal(t, 1600, ctx.ContactsTarget)
	assert.Equal(t, []string{"E-mail"}, ctx.Channels)
}
