// Package crawler holds the data model and cross-cutting policy of the
// product reference pipeline: retry and pacing, blocking detection, and the
// URL, keyword, and price helpers the components share.
package crawler
