package registry

import (
	"fmt"

	"ircxprop/pkg/propset"
	"ircxprop/pkg/types"
)

// Client is a user known to this server, either connected locally or
// introduced by a peer.
type Client struct {
	Nick     string
	Username string
	Host     string
	UID      string
	TS       int64

	Local      bool
	Registered bool
	// Account is the name of the account the client is logged into, if any.
	Account string

	props propset.Set
}

func (c *Client) Name() string  { return c.Nick }
func (c *Client) ID() string    { return c.UID }
func (c *Client) IsLocal() bool { return c.Local }

func (c *Client) Mask() string {
	return fmt.Sprintf("%s!%s@%s", c.Nick, c.Username, c.Host)
}

func (c *Client) Kind() types.EntityKind { return types.KindUser }

// Target is the UID, which stays stable across nick changes.
func (c *Client) Target() string      { return c.UID }
func (c *Client) Epoch() int64        { return c.TS }
func (c *Client) SetEpoch(ts int64)   { c.TS = ts }
func (c *Client) Props() *propset.Set { return &c.props }

// Server is a server acting on its own behalf, such as this server when it
// emits a burst.
type Server struct {
	ServerName string
	SID        string
}

func (s *Server) Name() string  { return s.ServerName }
func (s *Server) ID() string    { return s.SID }
func (s *Server) Mask() string  { return s.ServerName }
func (s *Server) IsLocal() bool { return false }
