// Command list_files recursively lists every file under one or more
// paths matching a comma-separated extension list, printing its
// modification time, size, and filename, followed by a grand total.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/recordflow/recordflow/internal/dirscan"
	"github.com/recordflow/recordflow/internal/record"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: list_files <ext1,ext2,...> <path> [path2] ...")
	fmt.Fprintln(os.Stderr, "  extensions - a comma delimited list of valid extensions")
}

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	extensions := strings.Split(os.Args[1], ",")
	valid := func(path string) bool {
		for _, ext := range extensions {
			if strings.HasSuffix(path, ext) {
				return true
			}
		}
		return false
	}

	var all []record.FileInfo
	for _, root := range os.Args[2:] {
		files, err := dirscan.Scan(root, valid)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		all = append(all, files...)
	}

	for _, f := range all {
		fmt.Printf("%s %20s\t%s\n", time.Unix(f.ModTime, 0).Format(time.RFC3339), humanize.Comma(f.Size), f.Filename)
	}

	summary := dirscan.Summarize(all)
	fmt.Println(summary.String())
}
