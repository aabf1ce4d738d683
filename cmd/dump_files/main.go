// Command dump_files prints every record from every file matching a
// comma-separated extension list under one or more paths. By default
// each file is dumped in its own on-disk order (mirroring dump_files_1
// from the original distribution); with -merge, all files are opened
// as newline-delimited cursors, each tagged with its index in the
// scanned file list, and merged with repeated lines collapsed. The
// merge comparator breaks ties by tag, so only repeats within one file
// are collapsed; equal lines from different files are each printed
// (mirroring dump_files_5).
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/recordflow/recordflow/internal/cursor"
	"github.com/recordflow/recordflow/internal/dirscan"
	"github.com/recordflow/recordflow/internal/framer"
	"github.com/recordflow/recordflow/internal/iobuf"
	"github.com/recordflow/recordflow/internal/record"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dump_files [-merge] <ext1,ext2,...> <path> [path2] ...")
}

func openDelimited(path string) (cursor.Source, error) {
	br, err := iobuf.Open(path, iobuf.Options{})
	if err != nil {
		return nil, err
	}
	return framer.New(br, framer.Options{Format: record.NewDelimitedFormat('\n', false)}), nil
}

func main() {
	merge := flag.Bool("merge", false, "merge all files, keeping only the first of each duplicate record")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}

	extensions := strings.Split(args[0], ",")
	valid := func(path string) bool {
		for _, ext := range extensions {
			if strings.HasSuffix(path, ext) {
				return true
			}
		}
		return false
	}

	var files []record.FileInfo
	for _, root := range args[1:] {
		found, err := dirscan.Scan(root, valid)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		files = append(files, found...)
	}

	if !*merge {
		dumpEach(files)
		return
	}
	if err := dumpMerged(files); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dumpEach(files []record.FileInfo) {
	for _, f := range files {
		src, err := openDelimited(f.Filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for {
			rec, ok, err := src.Next()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !ok {
				break
			}
			fmt.Println(string(rec.Bytes))
		}
		_ = src.Close()
	}
}

func byLine(a, b record.Record) int {
	if n := bytes.Compare(a.Bytes, b.Bytes); n != 0 {
		return n
	}
	return int(a.Tag - b.Tag)
}

func dumpMerged(files []record.FileInfo) error {
	mc := cursor.NewMultiCursor(byLine)
	mc.KeepFirst()
	for i, f := range files {
		src, err := openDelimited(f.Filename)
		if err != nil {
			return err
		}
		if err := mc.Add(src, int32(i)); err != nil {
			return err
		}
	}
	for {
		rec, ok, err := mc.AdvanceReduce()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		fmt.Printf("%d: %s\n", rec.Tag, rec.Bytes)
	}
	return nil
}
