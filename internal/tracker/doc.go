// Package tracker counts consecutive fetch failures per domain and
// blacklists a domain once its counter reaches a threshold.
//
// The tracker is the only state shared between crawl workers. Memory keeps
// the records in process; Redis keeps them in a Redis server so several
// crawler processes can share one blacklist.
package tracker
