package bungie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"raremblems/internal/assert"
	"raremblems/internal/telemetry"
	"raremblems/lib/restyutil"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNoMembership is returned when the account has no game memberships.
var ErrNoMembership = errors.New("no Destiny memberships found on this account")

const (
	report_client_get         = "client.get"
	report_client_memberships = "client.memberships"
	report_client_profile     = "client.profile"
)

// StatusError is a platform response that was not a success, either by http status
// or by the platform error code in the response envelope.
type StatusError struct {
	Url         string
	StatusCode  int
	ErrorCode   int
	ErrorStatus string
	Message     string
}

func (e StatusError) Error() string {
	if e.ErrorStatus != "" {
		return fmt.Sprintf("GET %s: %d %s: %s", e.Url, e.StatusCode, e.ErrorStatus, e.Message)
	}
	return fmt.Sprintf("GET %s: status %d", e.Url, e.StatusCode)
}

type Options struct {
	BaseUrl string
	ApiKey  string
	// Retries is the amount of times a request is retried after a transport error or a
	// 5xx/429 response, with exponential backoff between attempts.
	Retries int
	// Dump receives every exchange with the platform when set.
	Dump restyutil.Output
}

type Client struct {
	http *resty.Client
	tel  telemetry.API
}

func NewClient(opts Options, tel telemetry.API) Client {
	assert.NotNil(tel, "telemetry")
	assert.NotEmptyStr(opts.BaseUrl, "platform base url")

	tel = telemetry.NewScopedAPI("bungie", tel)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// definition tables are large, only bound the wait for the response headers
	transport.ResponseHeaderTimeout = time.Second * 30

	client := resty.New()
	client.SetTransport(transport)
	client.SetBaseURL(strings.TrimRight(opts.BaseUrl, "/"))
	client.SetHeader("X-API-Key", opts.ApiKey)
	client.SetHeader("Accept", "application/json")

	if opts.Retries > 0 {
		client.SetRetryCount(opts.Retries)
		client.SetRetryWaitTime(time.Second)
		client.SetRetryMaxWaitTime(time.Second * 10)
		client.AddRetryCondition(func(res *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return res.StatusCode() == http.StatusTooManyRequests || res.StatusCode() >= 500
		})
	}

	telemetry.InstrumentResty(client, tel)
	restyutil.Dump(client, "bungie", opts.Dump)

	return Client{http: client, tel: tel}
}

// Get fetches path (relative to the base url) and returns the raw body, an access token
// is sent as a bearer token when non-empty.
func (c Client) Get(ctx context.Context, path string, accessToken string) ([]byte, error) {
	return c.get(ctx, path, accessToken, nil)
}

func (c Client) get(ctx context.Context, path, accessToken string, query map[string]string) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if accessToken != "" {
		req.SetAuthToken(accessToken)
	}
	if query != nil {
		req.SetQueryParams(query)
	}

	res, err := req.Get(path)
	if err != nil {
		c.tel.ReportBroken(report_client_get, fmt.Errorf("fetch: %w", err), path)
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if res.IsError() {
		err := StatusError{Url: path, StatusCode: res.StatusCode()}
		var env envelope
		if json.Unmarshal(res.Body(), &env) == nil {
			err.ErrorCode = env.ErrorCode
			err.ErrorStatus = env.ErrorStatus
			err.Message = env.Message
		}
		c.tel.ReportBroken(report_client_get, err)
		return nil, err
	}
	return res.Body(), nil
}

// DecodeResponse unwraps the platform response envelope into T.
func DecodeResponse[T any](body []byte) (T, error) {
	var out T
	var env envelope
	err := json.Unmarshal(body, &env)
	if err != nil {
		return out, fmt.Errorf("decode envelope: %w", err)
	}
	if env.ErrorCode != 0 && env.ErrorCode != errorCodeSuccess {
		return out, StatusError{
			StatusCode:  http.StatusOK,
			ErrorCode:   env.ErrorCode,
			ErrorStatus: env.ErrorStatus,
			Message:     env.Message,
		}
	}
	if len(env.Response) == 0 {
		return out, fmt.Errorf("decode envelope: missing Response")
	}
	err = json.Unmarshal(env.Response, &out)
	if err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (c Client) Memberships(ctx context.Context, accessToken string) (UserMemberships, error) {
	body, err := c.Get(ctx, "/Platform/User/GetMembershipsForCurrentUser/", accessToken)
	if err != nil {
		return UserMemberships{}, err
	}
	memberships, err := DecodeResponse[UserMemberships](body)
	if err != nil {
		c.tel.ReportBroken(report_client_memberships, err)
		return UserMemberships{}, err
	}
	return memberships, nil
}

// PickPrimaryMembership prefers the cross save override if it is one of the
// memberships, else the first one.
func PickPrimaryMembership(memberships UserMemberships) (Membership, error) {
	if len(memberships.DestinyMemberships) == 0 {
		return Membership{}, ErrNoMembership
	}
	if memberships.PrimaryMembershipId != "" {
		for _, m := range memberships.DestinyMemberships {
			if m.MembershipId == memberships.PrimaryMembershipId {
				return m, nil
			}
		}
	}
	return memberships.DestinyMemberships[0], nil
}

func componentsParam() string {
	parts := make([]string, len(ProfileComponents))
	for i, c := range ProfileComponents {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

func (c Client) Profile(ctx context.Context, membership Membership, accessToken string) (Profile, error) {
	path := fmt.Sprintf(
		"/Platform/Destiny2/%d/Profile/%s/",
		membership.MembershipType,
		membership.MembershipId,
	)
	body, err := c.get(ctx, path, accessToken, map[string]string{
		"components": componentsParam(),
	})
	if err != nil {
		return Profile{}, err
	}
	profile, err := DecodeResponse[Profile](body)
	if err != nil {
		c.tel.ReportBroken(report_client_profile, err)
		return Profile{}, err
	}
	return profile, nil
}
