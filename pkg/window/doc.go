// Package window tracks the incremental harvest window.
//
// Each harvest key owns one high-water mark, the newest post id already
// collected, stored under the weibo_harvester namespace as "<key>.since_id".
// The next incremental cycle only asks for posts above it.
package window
