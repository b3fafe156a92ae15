// Package httprepo is the HTTP client for a remote repository server. It
// implements repository.Client against the /v1 API and a keyring.Registry
// against the same server's key endpoints.
package httprepo

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/keyring"
	"github.com/hushwire/hushwire/pkg/notify"
	"github.com/hushwire/hushwire/pkg/party"
	"github.com/hushwire/hushwire/pkg/proof"
	"github.com/hushwire/hushwire/pkg/repository"
)

// Client implements repository.Client over HTTP.
type Client struct {
	base string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. The default has a
// 30-second timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient points a Client at a server base URL such as
// "https://repo.example.com".
func NewClient(base string, opts ...Option) *Client {
	c := &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type messageRequest struct {
	SequenceHash []byte `json:"sequence_hash"`
	Ciphertext   []byte `json:"ciphertext"`
	Proof        []byte `json:"proof"`
}

type messageResponse struct {
	Ciphertext []byte    `json:"ciphertext"`
	StoredAt   time.Time `json:"stored_at"`
}

type epochsResponse struct {
	Epochs []uint64 `json:"epochs"`
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %s", repository.ErrUnavailable, err)
}

// statusError surfaces the server's error body for statuses that do not map
// to a sentinel.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%w: status %d: %s", repository.ErrUnavailable, resp.StatusCode, bytes.TrimSpace(body))
}

// Write implements repository.Client.
func (c *Client) Write(ctx context.Context, h hashchain.SequenceHash, ciphertext, proofEnvelope []byte) error {
	body, err := json.Marshal(messageRequest{
		SequenceHash: h[:],
		Ciphertext:   ciphertext,
		Proof:        proofEnvelope,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		return repository.ErrDuplicateKey
	case http.StatusUnprocessableEntity:
		return proof.ErrInvalidProof
	default:
		return statusError(resp)
	}
}

// Read implements repository.Client. Absent entries come back as (nil, nil).
func (c *Client) Read(ctx context.Context, h hashchain.SequenceHash) (*repository.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.base+"/v1/messages/"+hex.EncodeToString(h[:]), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unavailable(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, statusError(resp)
	}

	var body messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, unavailable(err)
	}
	return &repository.Entry{Ciphertext: body.Ciphertext, StoredAt: body.StoredAt}, nil
}

func (c *Client) fetchFilter(ctx context.Context, path string) (*notify.Filter, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unavailable(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, notify.ErrUnknownEpoch
	default:
		return nil, statusError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable(err)
	}
	return notify.Unmarshal(data)
}

// CurrentFilter implements repository.Client.
func (c *Client) CurrentFilter(ctx context.Context) (*notify.Filter, error) {
	return c.fetchFilter(ctx, "/v1/filter")
}

// ArchivedFilter implements repository.Client.
func (c *Client) ArchivedFilter(ctx context.Context, epoch uint64) (*notify.Filter, error) {
	return c.fetchFilter(ctx, fmt.Sprintf("/v1/filter/epochs/%d", epoch))
}

// Epochs implements repository.Client.
func (c *Client) Epochs(ctx context.Context) ([]uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/filter/epochs", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unavailable(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var body epochsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, unavailable(err)
	}
	return body.Epochs, nil
}

// Registry implements keyring.Registry against the server's key endpoints.
type Registry struct {
	c *Client
}

// NewRegistry builds a Registry over an existing Client.
func NewRegistry(c *Client) *Registry {
	return &Registry{c: c}
}

type keyRequest struct {
	Account   string `json:"account"`
	PublicKey string `json:"public_key"`
}

type keyResponse struct {
	Account   string `json:"account"`
	PublicKey string `json:"public_key"`
}

// Lookup implements keyring.Registry.
func (r *Registry) Lookup(ctx context.Context, account string) (party.ID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.c.base+"/v1/keys/"+url.PathEscape(account), nil)
	if err != nil {
		return "", err
	}
	resp, err := r.c.http.Do(req)
	if err != nil {
		return "", unavailable(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", keyring.ErrNotFound
	default:
		return "", statusError(resp)
	}

	var body keyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", unavailable(err)
	}
	id := party.ID(body.PublicKey)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Publish implements keyring.Registry.
func (r *Registry) Publish(ctx context.Context, account string, id party.ID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(keyRequest{Account: account, PublicKey: string(id)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.c.base+"/v1/keys", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.c.http.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return statusError(resp)
	}
	return nil
}
