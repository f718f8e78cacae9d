package weibo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Item types reported per harvest cycle
const (
	ItemTypeStatus  = "weibo_status"
	ItemTypeRetweet = "weibo_retweet"
)

// Post is a single status. Only the fields the harvester needs are decoded;
// Raw keeps the original bytes so archives store exactly what the API sent.
type Post struct {
	ID        int64
	CreatedAt string
	// Retweet is true when the post embeds a retweeted_status
	Retweet bool
	Raw     json.RawMessage
}

// postFields is the decoding view of a status
type postFields struct {
	ID              json.RawMessage `json:"id"`
	MID             json.RawMessage `json:"mid"`
	IDStr           string          `json:"idstr"`
	CreatedAt       string          `json:"created_at"`
	RetweetedStatus json.RawMessage `json:"retweeted_status"`
}

// UnmarshalJSON decodes a status, accepting the id as a JSON number or a
// numeric string and falling back to idstr or mid when id is absent.
func (p *Post) UnmarshalJSON(data []byte) error {
	var f postFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	id, err := firstID(f.ID, f.MID, json.RawMessage(strconv.Quote(f.IDStr)))
	if err != nil {
		return err
	}

	p.ID = id
	p.CreatedAt = f.CreatedAt
	p.Retweet = len(f.RetweetedStatus) > 0 && !bytes.Equal(f.RetweetedStatus, []byte("null"))
	p.Raw = append(p.Raw[:0], data...)
	return nil
}

// MarshalJSON returns the original bytes unchanged
func (p Post) MarshalJSON() ([]byte, error) {
	if len(p.Raw) == 0 {
		return json.Marshal(map[string]interface{}{"id": p.ID, "created_at": p.CreatedAt})
	}
	return p.Raw, nil
}

// ItemType classifies the post for per-type counters
func (p Post) ItemType() string {
	if p.Retweet {
		return ItemTypeRetweet
	}
	return ItemTypeStatus
}

func firstID(candidates ...json.RawMessage) (int64, error) {
	for _, raw := range candidates {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`)) {
			continue
		}
		s := string(raw)
		if raw[0] == '"' {
			unq, err := strconv.Unquote(s)
			if err != nil {
				return 0, fmt.Errorf("invalid post id %s: %w", s, err)
			}
			s = unq
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid post id %q: %w", s, err)
		}
		return id, nil
	}
	return 0, fmt.Errorf("post has no id")
}

// PostIDs returns the ids of posts in order
func PostIDs(posts []Post) []int64 {
	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

// APIError is the error body the API returns, sometimes with HTTP 200
type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"error_code"`
	Request string `json:"request"`
}

// StatusesResponse wraps a page of statuses
type StatusesResponse struct {
	Statuses       []Post `json:"statuses"`
	TotalNumber    int    `json:"total_number,omitempty"`
	PreviousCursor int64  `json:"previous_cursor,omitempty"`
	NextCursor     int64  `json:"next_cursor,omitempty"`
}

// UIDResponse is returned by account/get_uid
type UIDResponse struct {
	UID int64 `json:"uid"`
}

// User is a followed account. Raw keeps the full profile.
type User struct {
	ID         int64           `json:"id"`
	ScreenName string          `json:"screen_name"`
	Raw        json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the raw profile alongside the decoded fields
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*u = User(v)
	u.Raw = append(u.Raw[:0], data...)
	return nil
}

// FriendsResponse is returned by friendships/friends
type FriendsResponse struct {
	Users       []User `json:"users"`
	NextCursor  int64  `json:"next_cursor"`
	TotalNumber int    `json:"total_number"`
}

// ShortURL maps a short link to its target
type ShortURL struct {
	Short  string `json:"url_short"`
	Long   string `json:"url_long"`
	Type   int    `json:"type"`
	Result bool   `json:"result"`
}

// ShortURLResponse is returned by short_url/expand
type ShortURLResponse struct {
	URLs []ShortURL `json:"urls"`
}
