package blockcache

import (
	"github.com/recordflow/recordflow/internal/cursor"
	"github.com/recordflow/recordflow/internal/record"
)

// Loader reads every record out of one file in full, used to populate
// the cache on a miss. The returned records are owned copies.
type Loader func(info record.FileInfo) ([]record.Record, error)

// CachedOpener wraps load as a cursor.Opener so that a file whose
// records were already materialized for an earlier sub-cursor — the
// common case in a sorted join where one small dimension file recurs
// across many fact-file partitions — is served from memory instead of
// re-inflating its LZ4 blocks on every revisit. A cache hit is handed
// back as a cursor.RecordCursor directly over the cached slice, so
// this package carries no Source implementation of its own.
func CachedOpener(cache *Cache, load Loader) cursor.Opener {
	return func(info record.FileInfo) (cursor.Source, error) {
		if recs := cache.Get(info.Filename); recs != nil {
			return cursor.NewRecordCursor(recs), nil
		}
		recs, err := load(info)
		if err != nil {
			return nil, err
		}
		cache.Put(info.Filename, recs)
		return cursor.NewRecordCursor(recs), nil
	}
}
