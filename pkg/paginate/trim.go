package paginate

import (
	"cmp"
	"slices"
	"sort"

	"weiboharvest/pkg/weibo"
)

// Trim returns the contiguous run of page whose ids lie strictly between
// since and max. page must be sorted by id descending. A nil bound is open.
//
//	[10 9 8 7 6 5], max 8          -> [7 6 5]
//	[10 9 8 7 6 5], since 6        -> [10 9 8 7]
//	[10 9 8 7 6 5], since 6, max 8 -> [7]
func Trim(page []weibo.Post, since, max *int64) []weibo.Post {
	lo := 0
	if max != nil {
		lo = sort.Search(len(page), func(i int) bool { return page[i].ID < *max })
	}
	hi := len(page)
	if since != nil {
		hi = sort.Search(len(page), func(i int) bool { return page[i].ID <= *since })
	}
	if hi <= lo {
		return nil
	}
	return page[lo:hi]
}

// isDescending reports whether ids strictly decrease along page
func isDescending(page []weibo.Post) bool {
	for i := 1; i < len(page); i++ {
		if page[i].ID >= page[i-1].ID {
			return false
		}
	}
	return true
}

// sortDescending returns a sorted copy with duplicate ids removed
func sortDescending(page []weibo.Post) []weibo.Post {
	out := slices.Clone(page)
	slices.SortStableFunc(out, func(a, b weibo.Post) int { return cmp.Compare(b.ID, a.ID) })
	return slices.CompactFunc(out, func(a, b weibo.Post) bool { return a.ID == b.ID })
}
