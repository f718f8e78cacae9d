package harvest

import (
	"strings"

	"weiboharvest/pkg/config"
	errs "weiboharvest/pkg/errors"
)

// Harvest type names as they appear in requests
const (
	TypeTimeline    = "timeline"
	TypeTopicSearch = "topic_search"
)

// Target is what one harvest collects. It is either Timeline or TopicSearch.
type Target interface {
	// Kind returns the canonical harvest type name
	Kind() string
	// StateKey is the key the incremental window is stored under
	StateKey() string
	// Seed is the collection id or the query
	Seed() string

	isTarget()
}

// Timeline collects the friends timeline of the authenticated account into
// a collection.
type Timeline struct {
	CollectionID string
}

func (Timeline) Kind() string       { return TypeTimeline }
func (t Timeline) StateKey() string { return t.CollectionID }
func (t Timeline) Seed() string     { return t.CollectionID }
func (Timeline) isTarget()          {}

// TopicSearch collects search results for a topic query
type TopicSearch struct {
	Query string
}

func (TopicSearch) Kind() string       { return TypeTopicSearch }
func (t TopicSearch) StateKey() string { return t.Query }
func (t TopicSearch) Seed() string     { return t.Query }
func (TopicSearch) isTarget()          {}

// ParseTarget builds the Target for a request. Unknown types and missing
// seeds are configuration errors.
func ParseTarget(req config.HarvestRequest) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(req.Type)) {
	case "timeline", "weibo_timeline":
		id := strings.TrimSpace(req.CollectionID)
		if id == "" {
			return nil, errs.Config("timeline harvest requires a collection id")
		}
		return Timeline{CollectionID: id}, nil
	case "topic_search", "weibo_search":
		q := strings.TrimSpace(req.Query)
		if q == "" {
			return nil, errs.Config("topic search harvest requires a query")
		}
		return TopicSearch{Query: q}, nil
	default:
		return nil, errs.Config("unknown harvest type %q", req.Type)
	}
}
