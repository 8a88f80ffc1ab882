package registry

import (
	"errors"
	"sort"

	"ircxprop/pkg/casemap"
)

var (
	ErrNickInUse = errors.New("nickname is already in use")
	ErrUIDInUse  = errors.New("uid is already in use")
)

// Users indexes clients by nickname and by UID.
type Users struct {
	byNick map[string]*Client
	byUID  map[string]*Client
}

// NewUsers creates an empty user table
func NewUsers() *Users {
	return &Users{
		byNick: make(map[string]*Client),
		byUID:  make(map[string]*Client),
	}
}

// Add indexes c under its nick and UID.
func (u *Users) Add(c *Client) error {
	if _, exists := u.byUID[c.UID]; exists {
		return ErrUIDInUse
	}
	if c.Nick != "" {
		if _, exists := u.byNick[casemap.Fold(c.Nick)]; exists {
			return ErrNickInUse
		}
		u.byNick[casemap.Fold(c.Nick)] = c
	}
	u.byUID[c.UID] = c
	return nil
}

// Rename changes the nickname of c.
func (u *Users) Rename(c *Client, nick string) error {
	key := casemap.Fold(nick)
	if other, exists := u.byNick[key]; exists && other != c {
		return ErrNickInUse
	}
	if c.Nick != "" {
		delete(u.byNick, casemap.Fold(c.Nick))
	}
	c.Nick = nick
	u.byNick[key] = c
	return nil
}

// Remove drops c from both indexes.
func (u *Users) Remove(c *Client) {
	delete(u.byUID, c.UID)
	if existing, ok := u.byNick[casemap.Fold(c.Nick)]; ok && existing == c {
		delete(u.byNick, casemap.Fold(c.Nick))
	}
}

// Find resolves a nickname or a UID. UIDs start with a digit, which a
// nickname never does.
func (u *Users) Find(name string) *Client {
	if name == "" {
		return nil
	}
	if name[0] >= '0' && name[0] <= '9' {
		return u.byUID[name]
	}
	return u.byNick[casemap.Fold(name)]
}

// All returns every client ordered by UID.
func (u *Users) All() []*Client {
	out := make([]*Client, 0, len(u.byUID))
	for _, c := range u.byUID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// Len returns the number of known clients.
func (u *Users) Len() int {
	return len(u.byUID)
}
