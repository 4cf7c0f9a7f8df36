// Package catalog holds the product domain: the Product model, a JSON
// file-backed repository, and a Service that wraps every repository call in
// a resilience pipeline with degraded fallbacks.
package catalog
