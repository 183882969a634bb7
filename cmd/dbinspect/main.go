// Package main prints every key of a badger store opened read-only.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"

	"github.com/mstimer/mstimer-server/internal/domain"
	"github.com/mstimer/mstimer-server/internal/logger"
	"github.com/mstimer/mstimer-server/internal/store"
	"github.com/mstimer/mstimer-server/internal/timefmt"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(os.ExpandEnv("$HOME"), ".mstimer", "badger")
	}
	flag.StringVar(&dbPath, "db", dbPath, "Path to the badger store")
	flag.Parse()

	s, err := store.OpenReadOnly(dbPath, logger.Discard())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer s.Close()

	values, err := s.Dump(context.Background())
	if err != nil {
		log.Fatalf("Failed to read database: %v", err)
	}

	fmt.Println("=== Database Inspection ===")
	fmt.Println()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		fmt.Printf("%-20s %s\n", k, values[k])
	}
	fmt.Println()
	fmt.Printf("Keys: %d\n", len(keys))

	if raw, ok := values[domain.KeyTotalWatchTime]; ok {
		var total float64
		if err := json.Unmarshal(raw, &total); err == nil && timefmt.Renderable(total) {
			fmt.Printf("Total watch time: %s\n", timefmt.FormatTotal(total))
		}
	}
}
