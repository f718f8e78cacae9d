// Package paginate turns single page fetches into a continuous sequence of
// posts.
//
// Timeline mode follows the friends timeline from newest to oldest by moving
// max_id below the oldest post of each page until an empty page arrives.
//
// Topic search mode pages by number, trims every page to the (since, max)
// window with two binary searches and stops at the vendor's result ceiling,
// at an empty window, or at a window shorter than a page.
//
// Both modes sleep through rate limits and repeat the same request.
package paginate
