package main

import (
	"flag"
	"log"
	"os"
	"runtime/pprof"

	"github.com/barbel-engine/barbel/internal/engine"
	"github.com/barbel-engine/barbel/internal/storage"
	"github.com/barbel-engine/barbel/internal/uci"
)

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")

func main() {
	flag.Parse()

	// Start CPU profiling if requested (via flag or environment variable)
	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("CPU profiling enabled, writing to %s", profilePath)
	}

	store, err := storage.NewStorage()
	if err != nil {
		log.Printf("Warning: engine option persistence disabled: %v", err)
		store = nil
	}

	hashMB := 64
	if store != nil {
		if opts, err := store.LoadOptions(); err == nil {
			hashMB = opts.HashMB
		}
	}

	eng := engine.NewEngine(hashMB)

	protocol := uci.New(eng, store)
	protocol.Run()
}
