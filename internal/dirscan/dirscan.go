// Package dirscan recursively enumerates a directory tree into the
// record.FileInfo lists that ListCursor and the mapreduce Job consume,
// mirroring the directory-walk-then-sort shape of the original
// library's file listing helpers.
package dirscan

import (
	"cmp"
	"os"
	"path/filepath"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"

	"github.com/recordflow/recordflow/internal/record"
)

// ValidFunc decides whether a discovered regular file belongs in the
// result set. A nil ValidFunc accepts everything.
type ValidFunc func(path string) bool

// Scan recursively walks root, skipping any entry whose name begins
// with a dot (including the directories themselves, so ".git" is never
// descended into), and collects every regular file for which valid
// accepts true into a flat, unsorted list. A subdirectory that cannot
// be read or stat'd does not abort the walk: its error is collected
// and every other branch is still scanned, so one bad mount point
// under a large tree doesn't discard files that were readable.
func Scan(root string, valid ValidFunc) ([]record.FileInfo, error) {
	var out []record.FileInfo
	var errs *multierror.Error
	scanInto(&out, &errs, root, valid)
	if errs == nil {
		return out, nil
	}
	return out, errs.ErrorOrNil()
}

func scanInto(out *[]record.FileInfo, errs **multierror.Error, dir string, valid ValidFunc) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		*errs = multierror.Append(*errs, err)
		return
	}
	for _, e := range entries {
		if len(e.Name()) > 0 && e.Name()[0] == '.' {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			scanInto(out, errs, path, valid)
			continue
		}
		info, err := e.Info()
		if err != nil {
			*errs = multierror.Append(*errs, err)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if valid != nil && !valid(path) {
			continue
		}
		*out = append(*out, record.FileInfo{
			Filename: path,
			Size:     info.Size(),
			ModTime:  info.ModTime().Unix(),
		})
	}
}

// Order names one of the six sort disciplines Sort accepts.
type Order int

const (
	ByFilenameAsc Order = iota
	ByFilenameDesc
	ByModTimeAsc
	ByModTimeDesc
	BySizeAsc
	BySizeDesc
)

// Sort orders files in place according to order.
func Sort(files []record.FileInfo, order Order) {
	switch order {
	case ByFilenameAsc:
		slices.SortFunc(files, func(a, b record.FileInfo) int { return cmp.Compare(a.Filename, b.Filename) })
	case ByFilenameDesc:
		slices.SortFunc(files, func(a, b record.FileInfo) int { return cmp.Compare(b.Filename, a.Filename) })
	case ByModTimeAsc:
		slices.SortFunc(files, func(a, b record.FileInfo) int { return cmp.Compare(a.ModTime, b.ModTime) })
	case ByModTimeDesc:
		slices.SortFunc(files, func(a, b record.FileInfo) int { return cmp.Compare(b.ModTime, a.ModTime) })
	case BySizeAsc:
		slices.SortFunc(files, func(a, b record.FileInfo) int { return cmp.Compare(a.Size, b.Size) })
	case BySizeDesc:
		slices.SortFunc(files, func(a, b record.FileInfo) int { return cmp.Compare(b.Size, a.Size) })
	}
}

// Summary reports aggregate stats for a file list, human-formatted the
// way verbose CLI drivers report scan progress.
type Summary struct {
	Count     int
	TotalSize int64
}

func Summarize(files []record.FileInfo) Summary {
	s := Summary{Count: len(files)}
	for _, f := range files {
		s.TotalSize += f.Size
	}
	return s
}

// String renders a Summary as "N files, H.H MB" using the same
// human-readable byte formatting the rest of the toolkit's verbose
// logging relies on.
func (s Summary) String() string {
	return humanize.Comma(int64(s.Count)) + " files, " + humanize.Bytes(uint64(s.TotalSize))
}
