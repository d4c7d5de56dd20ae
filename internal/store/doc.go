// Package store defines the article metadata repository. Implementations
// live in sub-packages; this package must not import database drivers or
// concrete clients.
package store
