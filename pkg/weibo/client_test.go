package weibo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"weiboharvest/pkg/config"
	errs "weiboharvest/pkg/errors"
	"weiboharvest/pkg/logger"
)

const testToken = "2.00TESTTOKEN"

func newTestClient(t *testing.T, baseURL string, log logger.Logger) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:            baseURL,
		AccessToken:        testToken,
		Timeout:            5 * time.Second,
		NotFoundRetries:    3,
		NotFoundDelay:      time.Millisecond,
		ServerErrorRetries: 5,
		ServerErrorDelay:   time.Millisecond,
	}, log)
	require.NoError(t, err)
	return c
}

// roundTripFunc lets a test stand in for the network
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(Options{}, nil)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeAuth, errs.TypeOf(err))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Weibo.AccessToken = testToken

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, testToken, opts.AccessToken)
	assert.Equal(t, 3, opts.NotFoundRetries)
	assert.Equal(t, 5, opts.ServerErrorRetries)
	assert.NotNil(t, opts.Limiter)
}

func TestInvokeAttachesCredential(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"statuses":[]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/2/", nil)
	_, err := c.FriendsTimeline(context.Background(), TimelineQuery{Count: 100, SinceID: 42})
	require.NoError(t, err)

	assert.Equal(t, "OAuth2 "+testToken, gotAuth)
	assert.Equal(t, "/2/statuses/friends_timeline.json", gotPath)
	assert.Contains(t, gotQuery, "since_id=42")
	assert.NotContains(t, gotQuery, "max_id")
}

func TestInvokeDoesNotLogToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	tl := logger.NewTestLogger()
	c := newTestClient(t, srv.URL, tl)
	_, err := c.Invoke(context.Background(), EndpointGetUID, nil)
	require.NoError(t, err)

	assert.NotContains(t, tl.String(), testToken)
	assert.Contains(t, tl.String(), "2.00***")
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType errs.ErrorType
		wantCode int
	}{
		{"soft error on 200", 200, `{"error":"source paramter(appkey) is missing","error_code":10006,"request":"/2/search/topics.json"}`, errs.ErrorTypeAPI, 10006},
		{"user rate limit on 200", 200, `{"error":"User requests out of rate limit!","error_code":10023}`, errs.ErrorTypeRateLimit, 10023},
		{"ip rate limit on 403", 403, `{"error":"IP requests out of rate limit!","error_code":10022}`, errs.ErrorTypeRateLimit, 10022},
		{"resource rate limit", 400, `{"error":"User requests for too many times","error_code":10024}`, errs.ErrorTypeRateLimit, 10024},
		{"http 429", 429, ``, errs.ErrorTypeRateLimit, 429},
		{"expired token", 200, `{"error":"expired_token","error_code":21327}`, errs.ErrorTypeAuth, 21327},
		{"unauthorized", 401, `{"error":"invalid_access_token","error_code":21332}`, errs.ErrorTypeAuth, 401},
		{"bad request", 400, `{"error":"miss required parameter (q)","error_code":10016}`, errs.ErrorTypeAPI, 10016},
		{"invalid json", 200, `<html>`, errs.ErrorTypeParsing, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(EndpointTopicSearch, tt.status, []byte(tt.body))
			require.Error(t, err)

			var e *errs.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.wantType, e.Type)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, EndpointTopicSearch, e.Endpoint)
		})
	}

	assert.NoError(t, classify(EndpointTopicSearch, 200, []byte(`{"statuses":[]}`)))
}

func TestRateLimitIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"error":"User requests out of rate limit!","error_code":10023}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.SearchTopics(context.Background(), SearchQuery{Q: "rain", Count: 50, Page: 1})

	assert.True(t, errs.IsRateLimit(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNotFoundRetriedThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Invoke(context.Background(), EndpointGetUID, nil)

	assert.Equal(t, errs.ErrorTypeNotFound, errs.TypeOf(err))
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls), "one call plus three retries")
}

func TestServerErrorRecovers(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"uid":1904178193}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	uid, err := c.UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1904178193), uid)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestServerErrorBounded(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Invoke(context.Background(), EndpointGetUID, nil)
	assert.Equal(t, errs.ErrorTypeServerError, errs.TypeOf(err))
	assert.Equal(t, int32(6), atomic.LoadInt32(&calls))
}

func TestOtherClientErrorsFailImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"miss required parameter (q)","error_code":10016}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Invoke(context.Background(), EndpointTopicSearch, nil)
	assert.Equal(t, errs.ErrorTypeAPI, errs.TypeOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNetworkErrorReconnectsOnce(t *testing.T) {
	var calls int32
	c := newTestClient(t, "http://weibo.invalid/2/", logger.NewTestLogger())
	c.SetHTTPClient(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, io.ErrUnexpectedEOF
		}
		return jsonResponse(200, `{"uid":7}`), nil
	})})

	uid, err := c.UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), uid)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSecondNetworkErrorPropagates(t *testing.T) {
	var calls int32
	c := newTestClient(t, "http://weibo.invalid/2/", nil)
	c.SetHTTPClient(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection reset by peer")
	})})

	_, err := c.Invoke(context.Background(), EndpointGetUID, nil)
	assert.True(t, errs.IsNetwork(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCancelledContext(t *testing.T) {
	c := newTestClient(t, "http://weibo.invalid/2/", nil)
	c.SetHTTPClient(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, r.Context().Err()
	})})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Invoke(ctx, EndpointGetUID, nil)
	assert.True(t, IsContextError(err))
}

func TestRateLimitStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account/rate_limit_status.json", r.URL.Path)
		fmt.Fprint(w, `{"ip_limit":10000,"limit_time_unit":"HOURS","remaining_ip_hits":10000,"remaining_user_hits":0,"reset_time":"2024-05-01 10:00:00","reset_time_in_seconds":1234,"user_limit":150}`)
	}))
	defer srv.Close()

	snap, err := newTestClient(t, srv.URL, nil).RateLimitStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000, snap.RemainingIPHits)
	assert.Equal(t, 0, snap.RemainingUserHits)
	assert.Equal(t, 1234, snap.ResetTimeInSeconds)
	assert.False(t, snap.HasHeadroom())
}

func TestFriendsList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/account/get_uid.json":
			fmt.Fprint(w, `{"uid":55}`)
		case "/friendships/friends.json":
			assert.Equal(t, "55", r.URL.Query().Get("uid"))
			if r.URL.Query().Get("cursor") == "0" {
				fmt.Fprint(w, `{"users":[{"id":1,"screen_name":"a"},{"id":2,"screen_name":"b"}],"next_cursor":2}`)
				return
			}
			fmt.Fprint(w, `{"users":[{"id":3,"screen_name":"c"}],"next_cursor":0}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	users, err := newTestClient(t, srv.URL, nil).FriendsList(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "c", users[2].ScreenName)
	assert.JSONEq(t, `{"id":1,"screen_name":"a"}`, string(users[0].Raw))
}

func TestExpandShortURLsBatches(t *testing.T) {
	var batches []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shorts := r.URL.Query()["url_short"]
		batches = append(batches, len(shorts))
		var parts []string
		for _, s := range shorts {
			parts = append(parts, fmt.Sprintf(`{"url_short":%q,"url_long":"https://example.com/%s","type":0,"result":true}`, s, s[len(s)-2:]))
		}
		fmt.Fprintf(w, `{"urls":[%s]}`, strings.Join(parts, ","))
	}))
	defer srv.Close()

	var short []string
	for i := 0; i < 25; i++ {
		short = append(short, fmt.Sprintf("http://t.cn/x%02d", i))
	}

	urls, err := newTestClient(t, srv.URL, nil).ExpandShortURLs(context.Background(), short)
	require.NoError(t, err)
	assert.Len(t, urls, 25)
	assert.Equal(t, []int{20, 5}, batches)
	assert.Equal(t, "https://example.com/24", urls[24].Long)
}
