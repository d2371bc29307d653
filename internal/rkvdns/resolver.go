// Package rkvdns speaks the RKVDNS query protocol: key-value store reads
// encoded as DNS questions, answers carried in TXT records. A prefix scan is
// a TXT query for <escaped-pattern>.keys.<domain>; a single read is
// <escaped-key>.get.<domain>. Rendezvous discovery for federation is a PTR
// query for the rendezvous name.
package rkvdns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Wildcard is the store's wildcard character, usable inside key patterns.
const Wildcard = "*"

// ErrQueryFailed marks fatal resolver conditions: transport failure,
// NXDOMAIN or SERVFAIL. Callers log these and treat the result as empty.
// Any other non-success rcode is silent "no data" (nil result, nil error).
var ErrQueryFailed = errors.New("rkvdns query failed")

const defaultTimeout = 5 * time.Second

// Client issues RKVDNS queries against one DNS server.
type Client struct {
	server  string // host:port of the DNS server
	client  *dns.Client
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-query timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a client. server is the DNS server address; a missing port
// defaults to 53.
func New(server string, opts ...Option) *Client {
	if server != "" && !strings.Contains(server, ":") {
		server += ":53"
	}
	c := &Client{
		server:  server,
		client:  &dns.Client{},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client.Timeout = c.timeout
	return c
}

// Escape backslash-escapes the characters RKVDNS requires escaped in the
// key part of a query name: "." (the DNS label separator) and ";" (the
// conventional key delimiter).
func Escape(key string) string {
	var b strings.Builder
	for _, r := range key {
		if r == '.' || r == ';' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// keysName builds the query name for a prefix scan.
func keysName(pattern, domain string) string {
	return fmt.Sprintf("%s.keys.%s", Escape(pattern), strings.Trim(domain, "."))
}

// getName builds the query name for a single-key read.
func getName(key, domain string) string {
	return fmt.Sprintf("%s.get.%s", Escape(key), strings.Trim(domain, "."))
}

// Keys enumerates all stored keys matching the wildcard pattern under the
// given RKVDNS domain.
func (c *Client) Keys(ctx context.Context, pattern, domain string) ([]string, error) {
	return c.txt(ctx, keysName(pattern, domain))
}

// Get reads a single key's text value. A missing key returns ("", false, nil).
func (c *Client) Get(ctx context.Context, key, domain string) (string, bool, error) {
	values, err := c.txt(ctx, getName(key, domain))
	if err != nil {
		return "", false, err
	}
	if len(values) == 0 {
		return "", false, nil
	}
	return values[0], true, nil
}

// PTR resolves a rendezvous name to zero or more location identifiers.
// Zero locations is a normal outcome (not federated), not an error.
func (c *Client) PTR(ctx context.Context, name string) ([]string, error) {
	resp, err := c.exchange(ctx, dns.Fqdn(name), dns.TypePTR)
	if err != nil || resp == nil {
		return nil, err
	}

	var locations []string
	for _, rr := range resp.Answer {
		ptr, ok := rr.(*dns.PTR)
		if !ok {
			continue
		}
		locations = append(locations, strings.ToLower(strings.Trim(ptr.Ptr, ".")))
	}
	return locations, nil
}

// txt runs one TXT query and returns the record strings. TXT records split
// across multiple character-strings are rejoined.
func (c *Client) txt(ctx context.Context, qname string) ([]string, error) {
	resp, err := c.exchange(ctx, dns.Fqdn(qname), dns.TypeTXT)
	if err != nil || resp == nil {
		return nil, err
	}

	var values []string
	for _, rr := range resp.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		values = append(values, strings.Join(txt.Txt, ""))
	}
	return values, nil
}

// exchange performs the query. Fatal conditions (transport error, NXDOMAIN,
// SERVFAIL) return ErrQueryFailed; other non-success rcodes return
// (nil, nil) and read as "no data".
func (c *Client) exchange(ctx context.Context, qname string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(qname, qtype)
	msg.RecursionDesired = true

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, _, err := c.client.ExchangeContext(ctx, msg, c.server)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrQueryFailed, qname, err)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
		return resp, nil
	case dns.RcodeNameError, dns.RcodeServerFailure:
		return nil, fmt.Errorf("%w: %s: %s", ErrQueryFailed, qname, dns.RcodeToString[resp.Rcode])
	default:
		return nil, nil
	}
}

// Domain binds a Client to one RKVDNS domain, giving the reconstruction
// engine its key-value view of that store location.
type Domain struct {
	client *Client
	domain string
}

// Bind returns the client's view of one RKVDNS domain.
func (c *Client) Bind(domain string) *Domain {
	return &Domain{client: c, domain: strings.ToLower(strings.Trim(domain, "."))}
}

// Name returns the bound domain name.
func (d *Domain) Name() string { return d.domain }

// Keys enumerates stored keys matching the wildcard pattern.
func (d *Domain) Keys(ctx context.Context, pattern string) ([]string, error) {
	return d.client.Keys(ctx, pattern, d.domain)
}

// Get reads one key's text value.
func (d *Domain) Get(ctx context.Context, key string) (string, bool, error) {
	return d.client.Get(ctx, key, d.domain)
}
