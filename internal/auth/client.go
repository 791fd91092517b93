package auth

import (
	"net/url"
	"strings"
	"time"
)

// Client identifies a calling application. A nil-equivalent URI (empty
// string) means the code-only flow: no clickable links are produced and the
// raw token is communicated instead.
type Client struct {
	ID  string
	URI string

	// Routes overrides the default route suffix per action type.
	Routes map[ActionType]string
	// Validity overrides the default token validity per action type.
	Validity map[ActionType]time.Duration
}

// Route returns the client's route for the action type, falling back to the
// provided default. An empty result means no link can be built.
func (c *Client) Route(t ActionType, fallback string) string {
	if c != nil {
		if r, ok := c.Routes[t]; ok && r != "" {
			return r
		}
	}
	return fallback
}

// ActionLink builds the link communicated to the target email for one action
// type. Deeplink URIs (a scheme other than http/https) are joined without a
// separator; web URIs get a slash-joined route and a lowercased email.
// Returns "" and false when the client has no URI or no route is configured.
func (c *Client) ActionLink(t ActionType, defaultRoute, token, email string) (string, bool) {
	if c == nil || c.URI == "" {
		return "", false
	}
	route := c.Route(t, defaultRoute)
	if route == "" {
		return "", false
	}
	if strings.Contains(c.URI, "://") && !strings.HasPrefix(c.URI, "http") {
		return c.URI + route + "?token=" + url.QueryEscape(token) + "&email=" + url.QueryEscape(email), true
	}
	email = strings.ToLower(email)
	uri := strings.TrimSuffix(c.URI, "/")
	route = strings.TrimPrefix(route, "/")
	return uri + "/" + route + "?token=" + url.QueryEscape(token) + "&email=" + url.QueryEscape(email), true
}

// ClientRegistry is the read-mostly tenant configuration, loaded once at
// startup and immutable thereafter.
type ClientRegistry struct {
	byID    map[string]*Client
	clients []*Client
}

// NewClientRegistry indexes the configured clients by id.
func NewClientRegistry(clients []Client) *ClientRegistry {
	r := &ClientRegistry{byID: make(map[string]*Client, len(clients))}
	for i := range clients {
		c := clients[i]
		r.byID[c.ID] = &c
		r.clients = append(r.clients, &c)
	}
	return r
}

// Resolve identifies the calling client. An explicit client id takes
// priority and fails with ErrUnknownClient when unregistered; otherwise the
// Origin then Referer headers are matched against configured client URIs,
// failing with ErrClientUnresolvable when nothing matches.
func (r *ClientRegistry) Resolve(clientID, origin, referer string) (*Client, error) {
	if clientID != "" {
		c, ok := r.byID[clientID]
		if !ok {
			return nil, ErrUnknownClient
		}
		return c, nil
	}
	for _, source := range []string{origin, referer} {
		if source == "" {
			continue
		}
		if c := r.matchURI(source); c != nil {
			return c, nil
		}
	}
	return nil, ErrClientUnresolvable
}

func (r *ClientRegistry) matchURI(source string) *Client {
	source = strings.TrimSuffix(source, "/")
	for _, c := range r.clients {
		if c.URI == "" {
			continue
		}
		uri := strings.TrimSuffix(c.URI, "/")
		if source == uri || strings.HasPrefix(source+"/", uri+"/") {
			return c
		}
	}
	return nil
}
