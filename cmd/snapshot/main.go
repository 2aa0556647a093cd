package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/alexflint/go-arg"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/yiblet/qrscan/internal/appfs"
	"github.com/yiblet/qrscan/internal/logging"
	"github.com/yiblet/qrscan/internal/session"
	"github.com/yiblet/qrscan/internal/store/dbstore"
	"github.com/yiblet/qrscan/internal/tui"
)

type args struct {
	DB     string `arg:"--db" help:"Database path (default: ~/.config/qrscan/scans.db)"`
	Width  int    `arg:"--width" default:"120"`
	Height int    `arg:"--height" default:"24"`
}

func main() {
	var a args
	arg.MustParse(&a)

	fmt.Println("Scanner View Snapshot")
	fmt.Println("=====================")

	fs, err := appfs.New()
	if err != nil {
		log.Fatalf("Error creating app filesystem: %v", err)
	}
	dbPath, err := fs.DBPath(a.DB)
	if err != nil {
		log.Fatalf("Error resolving database path: %v", err)
	}

	db, err := dbstore.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	sess, err := session.New(ctx, db.History(), session.Options{Logger: logging.Discard()})
	if err != nil {
		log.Fatalf("Error loading history: %v", err)
	}
	defer sess.Close()

	if sess.Len() == 0 {
		fmt.Println("No scans yet. Run 'go run ./cmd/demo/' or 'qrscan decode --save' first.")
		return
	}

	model := tui.NewAppModel(ctx, sess, tui.Config{})
	model.Update(tea.WindowSizeMsg{Width: a.Width, Height: a.Height})

	view := tui.AppView(model)
	lines := strings.Split(view, "\n")

	fmt.Printf("Rendered view (%d lines, %d scans):\n", len(lines), sess.Len())
	fmt.Println(strings.Repeat("=", a.Width))
	for i, line := range lines {
		fmt.Printf("Line %2d: %s\n", i, line)
	}
	fmt.Println(strings.Repeat("=", a.Width))

	// Both panes should have left and right borders on every body line
	broken := 0
	for i, line := range lines[1 : len(lines)-2] {
		if strings.Count(line, "│") < 4 && strings.Contains(line, "│") {
			broken++
			fmt.Printf("Line %2d has %d border characters\n", i+1, strings.Count(line, "│"))
		}
	}

	if broken == 0 {
		fmt.Println("Pane borders are intact.")
	} else {
		fmt.Printf("%d line(s) with missing borders\n", broken)
	}
}
