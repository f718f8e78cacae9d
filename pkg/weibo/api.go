package weibo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"weiboharvest/pkg/ratelimit"
)

// RateLimitStatus fetches the current request budget. The endpoint itself is
// not rate limited, so it is safe to call while backing off.
func (c *Client) RateLimitStatus(ctx context.Context) (*ratelimit.Snapshot, error) {
	body, err := c.Invoke(ctx, EndpointRateLimitStatus, nil)
	if err != nil {
		return nil, err
	}
	var snap ratelimit.Snapshot
	if err := decode(EndpointRateLimitStatus, body, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// FriendsTimeline fetches one page of the authenticated user's friends timeline
func (c *Client) FriendsTimeline(ctx context.Context, q TimelineQuery) ([]Post, error) {
	return c.statuses(ctx, EndpointFriendsTimeline, q.Values())
}

// SearchTopics fetches one page of topic search results
func (c *Client) SearchTopics(ctx context.Context, q SearchQuery) ([]Post, error) {
	return c.statuses(ctx, EndpointTopicSearch, q.Values())
}

func (c *Client) statuses(ctx context.Context, endpoint string, params url.Values) ([]Post, error) {
	body, err := c.Invoke(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	var resp StatusesResponse
	if err := decode(endpoint, body, &resp); err != nil {
		return nil, err
	}
	return resp.Statuses, nil
}

// UserID returns the uid of the token's owner
func (c *Client) UserID(ctx context.Context) (int64, error) {
	body, err := c.Invoke(ctx, EndpointGetUID, nil)
	if err != nil {
		return 0, err
	}
	var resp UIDResponse
	if err := decode(EndpointGetUID, body, &resp); err != nil {
		return 0, err
	}
	return resp.UID, nil
}

// FriendsList returns the accounts followed by the token's owner. The API
// only lists friends that have also authorized the application.
func (c *Client) FriendsList(ctx context.Context) ([]User, error) {
	uid, err := c.UserID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving current user: %w", err)
	}

	var users []User
	cursor := int64(0)
	for {
		params := url.Values{}
		params.Set("uid", strconv.FormatInt(uid, 10))
		params.Set("count", strconv.Itoa(MaxFriendsCount))
		params.Set("cursor", strconv.FormatInt(cursor, 10))

		body, err := c.Invoke(ctx, EndpointFriends, params)
		if err != nil {
			return users, err
		}
		var resp FriendsResponse
		if err := decode(EndpointFriends, body, &resp); err != nil {
			return users, err
		}
		users = append(users, resp.Users...)

		if len(resp.Users) == 0 || resp.NextCursor == 0 || resp.NextCursor == cursor {
			return users, nil
		}
		cursor = resp.NextCursor
	}
}

// ExpandShortURLs resolves t.cn short links, batching requests as the API requires
func (c *Client) ExpandShortURLs(ctx context.Context, short []string) ([]ShortURL, error) {
	var out []ShortURL
	for start := 0; start < len(short); start += MaxShortURLsPerCall {
		end := start + MaxShortURLsPerCall
		if end > len(short) {
			end = len(short)
		}

		params := url.Values{}
		for _, s := range short[start:end] {
			params.Add("url_short", s)
		}

		body, err := c.Invoke(ctx, EndpointShortURLExpand, params)
		if err != nil {
			return out, err
		}
		var resp ShortURLResponse
		if err := decode(EndpointShortURLExpand, body, &resp); err != nil {
			return out, err
		}
		out = append(out, resp.URLs...)
	}
	return out, nil
}
