package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/claude/reptrack/internal/replay"
	"github.com/claude/reptrack/internal/tracker"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	exercise := flag.String("exercise", "", "exercise to replay (e.g. squat)")
	file := flag.String("file", "", "angle CSV file (- for stdin)")
	asJSON := flag.Bool("json", false, "print the result as JSON")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("reptrack-replay", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	registry := tracker.NewDefaultRegistry(log)

	if *exercise == "" || *file == "" {
		fmt.Fprintf(os.Stderr, "Usage: reptrack-replay -exercise <%s> -file <angles.csv> [-json]\n\n",
			strings.Join(registry.Kinds(), "|"))
		flag.PrintDefaults()
		os.Exit(1)
	}

	in := os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			log.Error("failed to open file", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	readings, err := replay.Parse(in)
	if err != nil {
		log.Error("failed to parse readings", "file", *file, "error", err)
		os.Exit(1)
	}

	var onUpdate func(int, tracker.Update)
	if !*asJSON {
		onUpdate = func(frame int, u tracker.Update) {
			if u.CompletedRep && u.RepScore != nil {
				fmt.Printf("frame %4d  rep %d  score %5.1f  %s\n", frame, u.RepCount, *u.RepScore, strings.Join(u.Feedback, "; "))
			}
		}
	}

	res, err := replay.Run(registry, *exercise, readings, onUpdate)
	if err != nil {
		log.Error("replay failed", "error", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Error("failed to write result", "error", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("exercise:  %s\n", res.Exercise)
	fmt.Printf("frames:    %d\n", res.Frames)
	fmt.Printf("reps:      %d\n", res.TotalReps)
	if res.AvgFormScore != nil {
		fmt.Printf("avg form:  %.1f\n", *res.AvgFormScore)
	} else {
		fmt.Println("avg form:  -")
	}
	fmt.Printf("end state: %s\n", res.Final)
}
