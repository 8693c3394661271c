// Package reconcile rebuilds the entry catalog from the configured category
// pages. A Reconciler fetches each page (through the page cache), extracts
// candidate entries from its tables and merges them behind the curated
// baseline. Runner drives a Reconciler in the background and reports progress
// over a channel.
package reconcile
