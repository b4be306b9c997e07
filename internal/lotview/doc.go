// Package lotview holds read-side helpers over a lot page: bid grouping,
// auction/date/county boundaries and the lazy-loaded visible window.
package lotview
