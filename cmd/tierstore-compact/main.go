// Command tierstore-compact replays a manifest's WAL and checkpoint,
// then writes a fresh checkpoint, truncating the WAL tail. Run offline,
// against a manifest directory whose store is stopped.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/cuemby/tierstore/pkg/manifest"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

var (
	manifestDir = flag.String("manifest-dir", "", "Manifest directory to compact (required)")
	dryRun      = flag.Bool("dry-run", false, "Report what would be compacted without writing a checkpoint")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if *manifestDir == "" {
		log.Fatal("tierstore-compact: -manifest-dir is required")
	}

	m, err := manifest.Open(*manifestDir)
	if err != nil {
		log.Fatalf("open manifest: %v", err)
	}
	defer m.Close()

	headers, err := m.Recover()
	if err != nil {
		log.Fatalf("recover manifest: %v", err)
	}

	resident, tombstoned := 0, 0
	live := make([]tstypes.Header, 0, len(headers))
	for _, h := range headers {
		if h.State == tstypes.StateTombstone {
			tombstoned++
			continue // tombstones carry no information once checkpointed
		}
		resident++
		live = append(live, h)
	}

	log.Printf("recovered %d keys (%d resident, %d tombstoned and dropped)", len(headers), resident, tombstoned)

	if *dryRun {
		log.Println("dry run: no checkpoint written")
		return
	}

	if err := m.Checkpoint(live); err != nil {
		log.Fatalf("checkpoint manifest: %v", err)
	}
	log.Println("checkpoint written, WAL truncated")
	os.Exit(0)
}
