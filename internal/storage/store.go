// See doc.go for package documentation.
package storage

import "errors"

// ErrKeyNotFound is returned by BoltStore.Get when key has no value in the
// bucket.
var ErrKeyNotFound = errors.New("key not found")
