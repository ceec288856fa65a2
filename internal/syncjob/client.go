// Package syncjob pulls roster and vehicle data from a WoT-style HTTP API
// into the store. Remote reads retry on transient failures; writes go
// through the same audited store operations the CLI uses, never raw SQL.
package syncjob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/blitz-labs/tankrank/internal/names"
)

// DefaultBaseURLs maps regions onto the public API hosts.
var DefaultBaseURLs = map[string]string{
	"eu":   "https://api.wotblitz.eu",
	"na":   "https://api.wotblitz.com",
	"com":  "https://api.wotblitz.com",
	"asia": "https://api.wotblitz.asia",
}

const (
	defaultAttempts = 4
	defaultBackoff  = 500 * time.Millisecond
	accountChunk    = 100
	maxResponseSize = 8 << 20
)

// transientStatus lists the HTTP codes worth another attempt.
var transientStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// ClientOptions configure an API client. AppID is required.
type ClientOptions struct {
	// AppID is the application id sent with every request.
	AppID string
	// BaseURLs overrides the region hosts (useful against a test server).
	BaseURLs map[string]string
	// HTTPClient defaults to a 15s-timeout client.
	HTTPClient *http.Client
	// MaxAttempts bounds tries per request, first call included (default 4).
	MaxAttempts int
	// BackoffBase is the first retry delay; it doubles per attempt with
	// jitter (default 500ms).
	BackoffBase time.Duration
	// Logger receives request diagnostics; nil discards them.
	Logger *slog.Logger
}

// Client talks to the remote API with bounded retries.
type Client struct {
	http     *http.Client
	baseURLs map[string]string
	appID    string
	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.AppID) == "" {
		return nil, errors.New("application id is required")
	}
	c := &Client{
		http:     opts.HTTPClient,
		baseURLs: opts.BaseURLs,
		appID:    opts.AppID,
		attempts: opts.MaxAttempts,
		backoff:  opts.BackoffBase,
		log:      opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.baseURLs == nil {
		c.baseURLs = DefaultBaseURLs
	}
	if c.attempts <= 0 {
		c.attempts = defaultAttempts
	}
	if c.backoff <= 0 {
		c.backoff = defaultBackoff
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// Member is one clan member from the remote roster.
type Member struct {
	AccountID int64
	Nickname  string
	ClanID    int64
}

// Vehicle is one catalog entry from the remote encyclopedia.
type Vehicle struct {
	Name string `json:"name"`
	Tier int    `json:"tier"`
	Type string `json:"type"`
}

type apiEnvelope struct {
	Status string          `json:"status"`
	Error  *apiError       `json:"error"`
	Data   json.RawMessage `json:"data"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type memberRow struct {
	AccountID   int64  `json:"account_id"`
	AccountName string `json:"account_name"`
}

type clanInfo struct {
	Members   json.RawMessage `json:"members"`
	MemberIDs []int64         `json:"members_ids"`
}

type accountInfo struct {
	Nickname string `json:"nickname"`
}

// ClanMembers fetches one clan's member list. Responses that carry only
// members_ids are completed through the account endpoint.
func (c *Client) ClanMembers(ctx context.Context, region string, clanID int64) ([]Member, error) {
	q := url.Values{}
	q.Set("clan_id", strconv.FormatInt(clanID, 10))
	q.Set("extra", "members")
	q.Set("fields", "members.account_id,members.account_name")

	var data map[string]*clanInfo
	if err := c.getJSON(ctx, region, "/wotb/clans/info/", q, &data); err != nil {
		return nil, fmt.Errorf("clan %d: %w", clanID, err)
	}
	info := data[strconv.FormatInt(clanID, 10)]
	if info == nil {
		return nil, fmt.Errorf("clan %d: unknown clan", clanID)
	}

	out := make([]Member, 0, 64)
	for _, m := range decodeMembers(info.Members) {
		if m.AccountID == 0 || m.AccountName == "" {
			continue
		}
		out = append(out, Member{AccountID: m.AccountID, Nickname: m.AccountName, ClanID: clanID})
	}
	if len(out) > 0 {
		return out, nil
	}
	if len(info.MemberIDs) == 0 {
		return nil, nil
	}

	nicknames, err := c.AccountNames(ctx, region, info.MemberIDs)
	if err != nil {
		return nil, fmt.Errorf("clan %d: %w", clanID, err)
	}
	ids := append([]int64(nil), info.MemberIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if nick, ok := nicknames[id]; ok {
			out = append(out, Member{AccountID: id, Nickname: nick, ClanID: clanID})
		}
	}
	return out, nil
}

// decodeMembers tolerates both list- and map-shaped member payloads.
func decodeMembers(raw json.RawMessage) []memberRow {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []memberRow
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var dict map[string]memberRow
	if err := json.Unmarshal(raw, &dict); err != nil {
		return nil
	}
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]memberRow, 0, len(dict))
	for _, k := range keys {
		out = append(out, dict[k])
	}
	return out
}

// AccountNames resolves account ids to nicknames in bounded chunks.
// Accounts the API does not know are simply absent from the result.
func (c *Client) AccountNames(ctx context.Context, region string, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	for start := 0; start < len(ids); start += accountChunk {
		end := min(start+accountChunk, len(ids))
		chunk := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			chunk = append(chunk, strconv.FormatInt(id, 10))
		}

		q := url.Values{}
		q.Set("account_id", strings.Join(chunk, ","))
		q.Set("fields", "nickname")

		var data map[string]*accountInfo
		if err := c.getJSON(ctx, region, "/wotb/account/info/", q, &data); err != nil {
			return nil, err
		}
		for sid, row := range data {
			if row == nil || row.Nickname == "" {
				continue
			}
			id, err := strconv.ParseInt(sid, 10, 64)
			if err != nil {
				continue
			}
			out[id] = row.Nickname
		}
	}
	return out, nil
}

// Vehicles fetches the full vehicle encyclopedia for one region, ordered by
// remote id. An empty list is an error: the endpoint always has content.
func (c *Client) Vehicles(ctx context.Context, region string) ([]Vehicle, error) {
	q := url.Values{}
	q.Set("fields", "name,tier,type")

	var data map[string]*Vehicle
	if err := c.getJSON(ctx, region, "/wotb/encyclopedia/vehicles/", q, &data); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		if data[k] != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]Vehicle, 0, len(keys))
	for _, k := range keys {
		out = append(out, *data[k])
	}
	if len(out) == 0 {
		return nil, errors.New("vehicle list came back empty")
	}
	return out, nil
}

// getJSON performs one API GET with retries and decodes the data payload.
// Transport errors and transient HTTP codes retry with exponential backoff
// and jitter; API-level errors and other HTTP codes fail immediately.
func (c *Client) getJSON(ctx context.Context, region, path string, query url.Values, out any) error {
	base, ok := c.baseURLs[region]
	if !ok {
		return fmt.Errorf("unsupported region %q", region)
	}
	query.Set("application_id", c.appID)
	reqURL := base + path + "?" + query.Encode()

	backoff := retry.NewExponential(c.backoff)
	backoff = retry.WithJitter(c.backoff/2, backoff)
	backoff = retry.WithMaxRetries(uint64(c.attempts-1), backoff)

	var payload apiEnvelope
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Debug("api request failed", "path", path, "error", err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read response: %w", err))
		}
		if resp.StatusCode != http.StatusOK {
			herr := fmt.Errorf("http %d: %s", resp.StatusCode, names.Clip(string(body), 200))
			if transientStatus[resp.StatusCode] {
				c.log.Debug("transient api failure", "path", path, "status", resp.StatusCode)
				return retry.RetryableError(herr)
			}
			return herr
		}

		payload = apiEnvelope{}
		if err := json.Unmarshal(body, &payload); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if payload.Status != "ok" {
			if payload.Error != nil {
				return fmt.Errorf("api error %d: %s", payload.Error.Code, payload.Error.Message)
			}
			return fmt.Errorf("api status %q", payload.Status)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(payload.Data) == 0 {
		return errors.New("api response has no data")
	}
	if err := json.Unmarshal(payload.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
