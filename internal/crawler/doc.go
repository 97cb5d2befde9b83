// Package crawler defines the domain types and collaborator contracts shared by
// the job crawl engine: link and detail records, site crawler plug-ins, result
// stores, fetchers, and the small helpers used across subsystems.
package crawler
