package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/yiblet/qrscan/internal/capture"
	"github.com/yiblet/qrscan/internal/capture/mocksource"
	"github.com/yiblet/qrscan/internal/export"
	"github.com/yiblet/qrscan/internal/logging"
	"github.com/yiblet/qrscan/internal/session"
	"github.com/yiblet/qrscan/internal/store/memstore"
)

func main() {
	fmt.Println("qrscan Session Demo")

	// A scripted camera: the same code held in view for several frames,
	// blank frames between codes, then a code seen again later.
	driver := mocksource.New(mocksource.Frames(
		"https://example.com/item/1", "https://example.com/item/1", "",
		"WIFI:S:office;T:WPA;P:secret;;", "",
		"https://example.com/item/2", "https://example.com/item/1",
	)...)
	driver.Interval = 50 * time.Millisecond

	capturer := capture.New(driver, capture.WithDecoder(mocksource.NewDecoder))

	// In-memory history; nothing is written to disk
	ms := memstore.NewMemoryStore()
	added := make(chan string, 16)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := session.New(ctx, ms.History(), session.Options{
		Capturer: capturer,
		Logger:   logging.Discard(),
		OnEvent: func(ev session.Event) {
			if ev.Kind == session.RecordAdded {
				added <- ev.Record.Value
			}
		},
	})
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	defer sess.Close()

	fmt.Printf("Session %s, initial history size: %d\n\n", sess.ID(), sess.Len())

	if err := sess.Start(ctx, capture.DefaultConfig()); err != nil {
		log.Fatalf("Failed to start capture: %v", err)
	}
	dev, _ := sess.Device()
	fmt.Printf("Scanning with %s:\n", dev)

	// Three distinct codes appear in the script
	for i := 1; i <= 3; i++ {
		select {
		case v := <-added:
			fmt.Printf("%d. %s\n", i, v)
		case <-ctx.Done():
			log.Fatalf("Timed out waiting for scans")
		}
	}

	if err := sess.Stop(); err != nil {
		log.Printf("Failed to stop capture: %v", err)
	}

	// Show final state
	fmt.Printf("\nFinal history size: %d (store appends: %d)\n\n", sess.Len(), ms.Appends())

	fmt.Println("History (oldest first):")
	for _, r := range sess.Records() {
		fmt.Printf("%d. [%s] %s\n", r.ID, r.Time, r.Value)
	}

	// Demonstrate an export
	fmt.Println("\nCSV export:")
	csv, err := export.ForFormat("csv")
	if err != nil {
		log.Fatalf("Failed to get exporter: %v", err)
	}
	if err := csv.Export(ctx, sess.Records(), os.Stdout); err != nil {
		log.Fatalf("Failed to export: %v", err)
	}

	fmt.Printf("\nDemo complete! (Using in-memory store)\n")
}
