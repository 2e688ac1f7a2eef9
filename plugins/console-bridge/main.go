// Package main provides a bridge that prints a summary of the rig frames it
// receives. It reads one JSON rig frame per line from stdin and writes to stderr,
// which the host relays into its own log.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ayusman/kathakali/internal/rig"
)

func main() {
	every := flag.Int("every", 30, "print one summary every N frames")
	flag.Parse()

	n, err := run(os.Stdin, os.Stderr, *every)
	if err != nil {
		fmt.Fprintf(os.Stderr, "console-bridge: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "console-bridge: %d frames received\n", n)
}

// run consumes frames from r until EOF, writing a summary to w every N frames.
func run(r io.Reader, w io.Writer, every int) (int, error) {
	if every < 1 {
		every = 1
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	count := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var frame rig.Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			return count, fmt.Errorf("decode frame %d: %w", count+1, err)
		}
		count++
		if count%every == 0 {
			fmt.Fprintln(w, summarize(frame))
		}
	}
	return count, scanner.Err()
}

// summarize renders the frame's non-zero blendshapes and head rotation on one line.
func summarize(f rig.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s", f.Seq, f.Asset)

	if q, ok := f.Bones[rig.BoneHead]; ok {
		fmt.Fprintf(&b, " head=(%.2f %.2f %.2f %.2f)", q.X, q.Y, q.Z, q.W)
	}

	names := make([]string, 0, len(f.Blendshapes))
	for name, v := range f.Blendshapes {
		if v > 0.01 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%.2f", name, f.Blendshapes[name])
	}
	return b.String()
}
