// Command convert_interactions converts a CSV interaction log (header
// row containing ITEM_ID, USER_ID, TIMESTAMP and an optional
// EVENT_TYPE column, matched case-insensitively) into a prefix-framed
// binary file, externally sorted by timestamp. Each output record is
// a little-endian uint32 timestamp followed by NUL-terminated user,
// item, and event-type strings.
package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/recordflow/recordflow/internal/extsort"
	"github.com/recordflow/recordflow/internal/iosink"
	"github.com/recordflow/recordflow/internal/record"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: convert_interactions [-verbose] <input.csv> <output>")
}

type columns struct {
	item, user, timestamp, eventType int // -1 when absent
	width                            int
}

func discoverColumns(header []string) columns {
	c := columns{item: -1, user: -1, timestamp: -1, eventType: -1}
	for i, name := range header {
		switch strings.ToUpper(strings.TrimSpace(name)) {
		case "ITEM_ID":
			c.item = i
		case "USER_ID":
			c.user = i
		case "TIMESTAMP":
			c.timestamp = i
		case "EVENT_TYPE":
			c.eventType = i
		default:
			continue
		}
		if i+1 > c.width {
			c.width = i + 1
		}
	}
	return c
}

func compareByTimestamp(a, b record.Record) int {
	ta := binary.LittleEndian.Uint32(a.Bytes[:4])
	tb := binary.LittleEndian.Uint32(b.Bytes[:4])
	switch {
	case ta < tb:
		return -1
	case ta > tb:
		return 1
	default:
		return 0
	}
}

func encodeRecord(timestamp uint32, user, item, eventType string) []byte {
	buf := make([]byte, 0, 4+len(user)+1+len(item)+1+len(eventType)+1)
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], timestamp)
	buf = append(buf, hdr[:]...)
	buf = append(buf, user...)
	buf = append(buf, 0)
	buf = append(buf, item...)
	buf = append(buf, 0)
	buf = append(buf, eventType...)
	buf = append(buf, 0)
	return buf
}

func run(inputPath, outputPath string, verbose bool) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return scanner.Err()
	}
	cols := discoverColumns(strings.Split(trimCR(scanner.Text()), ","))
	if cols.item == -1 {
		fmt.Fprintln(os.Stderr, "ERROR: ITEM_ID must be present in input!")
	}
	if cols.user == -1 {
		fmt.Fprintln(os.Stderr, "ERROR: USER_ID must be present in input!")
	}
	if cols.timestamp == -1 {
		fmt.Fprintln(os.Stderr, "ERROR: TIMESTAMP must be present in input!")
	}

	sorter := extsort.New(extsort.Options{
		Comparator:     compareByTimestamp,
		UseExtraThread: true,
		MemoryLimit:    32 * 1024 * 1024,
		TempDir:        os.TempDir(),
		RunPrefix:      "convert-interactions",
		Format:         record.NewPrefixFormat(),
		Final:          iosink.Options{},
		Verbose:        verbose,
	})

	for scanner.Scan() {
		line := trimCR(scanner.Text())
		fields := strings.Split(line, ",")
		if len(fields) < cols.width {
			fmt.Fprintf(os.Stderr, "WARN (num_fields: %d < %d): %s\n", len(fields), cols.width, line)
			continue
		}
		eventType := ""
		if cols.eventType != -1 {
			eventType = fields[cols.eventType]
		}
		timestamp, err := strconv.ParseUint(fields[cols.timestamp], 10, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "WARN (timestamp: %s): %s\n", fields[cols.timestamp], line)
			continue
		}
		rec := record.Record{Bytes: encodeRecord(uint32(timestamp), fields[cols.user], fields[cols.item], eventType)}
		if err := sorter.Add(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	return sorter.Finalize(outputPath)
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}

func main() {
	fs := flag.NewFlagSet("convert_interactions", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "report each spilled run and the final merge")
	fs.Parse(os.Args[1:])

	if fs.NArg() != 2 {
		usage()
		os.Exit(1)
	}
	if err := run(fs.Arg(0), fs.Arg(1), *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
