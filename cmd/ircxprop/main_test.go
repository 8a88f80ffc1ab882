package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ircxprop/pkg/propset"
	"ircxprop/pkg/store"
)

func TestCutPeer(t *testing.T) {
	name, addr, ok := cutPeer("hub=hub.example.org:7000")
	assert.True(t, ok)
	assert.Equal(t, "hub", name)
	assert.Equal(t, "hub.example.org:7000", addr)

	for _, bad := range []string{"", "hub", "=addr", "hub="} {
		_, _, ok := cutPeer(bad)
		assert.False(t, ok, bad)
	}
}

func TestAccountTable_MasksHiddenKeys(t *testing.T) {
	records := []store.AccountRecord{{
		Name:       "alice",
		CreationTS: 1000,
		Props: []propset.Property{
			{Name: "passphrase", Value: "$2a$10$secret", SetAt: 1000, Setter: "irc.example.org"},
			{Name: "url", Value: "https://example.org", SetAt: 1001, Setter: "alice!alice@host"},
		},
	}}

	out := accountTable(records, []string{"passphrase"}, false)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "https://example.org")
	assert.NotContains(t, out, "$2a$10$secret")

	out = accountTable(records, []string{"passphrase"}, true)
	assert.Contains(t, out, "$2a$10$secret")
}
