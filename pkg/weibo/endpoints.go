package weibo

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// BaseURL is the root of the v2 REST API
	BaseURL = "https://api.weibo.com/2/"

	EndpointFriendsTimeline = "statuses/friends_timeline.json"
	EndpointTopicSearch     = "search/topics.json"
	EndpointRateLimitStatus = "account/rate_limit_status.json"
	EndpointGetUID          = "account/get_uid.json"
	EndpointFriends         = "friendships/friends.json"
	EndpointShortURLExpand  = "short_url/expand.json"

	// MaxTimelineCount is the largest page the timeline endpoint serves
	MaxTimelineCount = 100
	// MaxSearchCount is the largest page the topic search endpoint serves
	MaxSearchCount = 50
	// SearchResultCeiling is the number of results topic search will ever return
	SearchResultCeiling = 200
	// MaxFriendsCount is the largest page of the friends endpoint
	MaxFriendsCount = 200
	// MaxShortURLsPerCall bounds url_short values per expand request
	MaxShortURLsPerCall = 20
)

// TimelineQuery holds the friends timeline parameters. Zero cursors are omitted.
type TimelineQuery struct {
	Count   int
	Page    int
	SinceID int64
	MaxID   int64
}

// Values encodes the query for the request URL
func (q TimelineQuery) Values() url.Values {
	params := url.Values{}
	params.Set("count", strconv.Itoa(clamp(q.Count, MaxTimelineCount)))
	page := q.Page
	if page <= 0 {
		page = 1
	}
	params.Set("page", strconv.Itoa(page))
	if q.SinceID > 0 {
		params.Set("since_id", strconv.FormatInt(q.SinceID, 10))
	}
	if q.MaxID > 0 {
		params.Set("max_id", strconv.FormatInt(q.MaxID, 10))
	}
	return params
}

// SearchQuery holds the topic search parameters
type SearchQuery struct {
	Q     string
	Count int
	Page  int
}

// Values encodes the query for the request URL
func (q SearchQuery) Values() url.Values {
	params := url.Values{}
	params.Set("q", q.Q)
	params.Set("count", strconv.Itoa(clamp(q.Count, MaxSearchCount)))
	page := q.Page
	if page <= 0 {
		page = 1
	}
	params.Set("page", strconv.Itoa(page))
	return params
}

// endpointURL joins the base URL and endpoint path
func endpointURL(base, endpoint string, params url.Values) string {
	u := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func clamp(n, max int) int {
	if n <= 0 || n > max {
		return max
	}
	return n
}
