// Package crawler holds the domain types shared by the crawl pipeline: the
// Entity being resolved, the per-entity Result, the run Report and the
// interfaces for the browser, the extractor and time.
package crawler
