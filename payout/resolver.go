// Package payout turns Lightning addresses and LNURL-pay links into invoices.
package payout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// ErrUnresolvable wraps every failure to obtain an invoice for an assignee.
var ErrUnresolvable = errors.New("lightning address could not be resolved")

const (
	DefaultTimeout  = 5 * time.Second
	maxResponseBody = 64 << 10
	payRequestTag   = "payRequest"
	lnurlPrefix     = "lnurl1"
	lightningScheme = "lightning:"
)

type payParams struct {
	Tag         string `json:"tag"`
	Callback    string `json:"callback"`
	MinSendable int64  `json:"minSendable"`
	MaxSendable int64  `json:"maxSendable"`
	Status      string `json:"status"`
	Reason      string `json:"reason"`
}

type invoiceResponse struct {
	PR     string `json:"pr"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Resolver implements LNURL-pay for Lightning addresses (user@domain),
// bech32 lnurl strings and plain https LNURL endpoints.
type Resolver struct {
	client  *http.Client
	timeout time.Duration
	logger  *log.Logger
}

// NewResolver creates a Resolver. A nil client uses http.DefaultClient and a
// non-positive timeout uses DefaultTimeout.
func NewResolver(client *http.Client, timeout time.Duration, logger *log.Logger) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Resolver{client: client, timeout: timeout, logger: logger}
}

// Resolve fetches a bolt11 invoice for amountSats from the assignee's address.
func (r *Resolver) Resolve(ctx context.Context, assignee string, amountSats int64) (string, error) {
	if amountSats <= 0 {
		return "", fmt.Errorf("amount %d: %w", amountSats, ErrUnresolvable)
	}
	endpoint, err := Endpoint(assignee)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var params payParams
	if err := r.getJSON(ctx, endpoint, &params); err != nil {
		return "", err
	}
	msat := amountSats * 1000
	if err := params.check(msat); err != nil {
		return "", err
	}

	cb, err := callbackURL(params.Callback, msat)
	if err != nil {
		return "", err
	}
	var inv invoiceResponse
	if err := r.getJSON(ctx, cb, &inv); err != nil {
		return "", err
	}
	if strings.EqualFold(inv.Status, "ERROR") {
		return "", fmt.Errorf("callback error %q: %w", inv.Reason, ErrUnresolvable)
	}
	if inv.PR == "" {
		return "", fmt.Errorf("callback returned no invoice: %w", ErrUnresolvable)
	}
	r.logger.WithFields(log.Fields{"endpoint": endpoint, "amount_sat": amountSats}).Debug("resolved invoice")
	return inv.PR, nil
}

func (p payParams) check(msat int64) error {
	if strings.EqualFold(p.Status, "ERROR") {
		return fmt.Errorf("service error %q: %w", p.Reason, ErrUnresolvable)
	}
	if p.Tag != payRequestTag {
		return fmt.Errorf("unexpected lnurl tag %q: %w", p.Tag, ErrUnresolvable)
	}
	if p.Callback == "" {
		return fmt.Errorf("missing callback: %w", ErrUnresolvable)
	}
	if p.MinSendable > 0 && msat < p.MinSendable {
		return fmt.Errorf("amount %d msat below minimum %d: %w", msat, p.MinSendable, ErrUnresolvable)
	}
	if p.MaxSendable > 0 && msat > p.MaxSendable {
		return fmt.Errorf("amount %d msat above maximum %d: %w", msat, p.MaxSendable, ErrUnresolvable)
	}
	return nil
}

func (r *Resolver) getJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %v: %w", err, ErrUnresolvable)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %v: %w", target, err, ErrUnresolvable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return fmt.Errorf("request %s: status %d: %w", target, resp.StatusCode, ErrUnresolvable)
	}
	if err := sonic.ConfigStd.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %v: %w", target, err, ErrUnresolvable)
	}
	return nil
}

// Endpoint returns the LNURL-pay URL behind a Lightning address, a bech32
// lnurl or an https URL.
func Endpoint(address string) (string, error) {
	addr := strings.TrimSpace(address)
	if len(addr) >= len(lightningScheme) && strings.EqualFold(addr[:len(lightningScheme)], lightningScheme) {
		addr = addr[len(lightningScheme):]
	}
	switch {
	case addr == "":
		return "", fmt.Errorf("empty address: %w", ErrUnresolvable)
	case strings.HasPrefix(strings.ToLower(addr), lnurlPrefix):
		return decodeLNURL(addr)
	case strings.Contains(addr, "://"):
		return checkURL(addr)
	}
	user, domain, ok := strings.Cut(addr, "@")
	if !ok || user == "" || domain == "" || strings.ContainsAny(user, "/?#") || strings.ContainsAny(domain, "/?#@") {
		return "", fmt.Errorf("address %q: %w", address, ErrUnresolvable)
	}
	scheme := "https"
	if strings.HasSuffix(hostOnly(domain), ".onion") {
		scheme = "http"
	}
	return scheme + "://" + domain + "/.well-known/lnurlp/" + url.PathEscape(strings.ToLower(user)), nil
}

func decodeLNURL(s string) (string, error) {
	hrp, data, err := bech32.DecodeNoLimit(strings.ToLower(s))
	if err != nil {
		return "", fmt.Errorf("decode lnurl: %v: %w", err, ErrUnresolvable)
	}
	if hrp != "lnurl" {
		return "", fmt.Errorf("unexpected lnurl prefix %q: %w", hrp, ErrUnresolvable)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("decode lnurl: %v: %w", err, ErrUnresolvable)
	}
	return checkURL(string(raw))
}

func checkURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid lnurl %q: %w", raw, ErrUnresolvable)
	}
	switch {
	case u.Scheme == "https":
	case u.Scheme == "http" && strings.HasSuffix(u.Hostname(), ".onion"):
	default:
		return "", fmt.Errorf("lnurl %q must use https: %w", raw, ErrUnresolvable)
	}
	return u.String(), nil
}

func callbackURL(callback string, msat int64) (string, error) {
	cb, err := checkURL(callback)
	if err != nil {
		return "", err
	}
	u, _ := url.Parse(cb)
	q := u.Query()
	q.Set("amount", strconv.FormatInt(msat, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func hostOnly(hostport string) string {
	if i := strings.LastIndex(hostport, ":"); i >= 0 && !strings.Contains(hostport[i:], "]") {
		return hostport[:i]
	}
	return hostport
}
