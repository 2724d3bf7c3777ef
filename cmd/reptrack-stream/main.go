package main

import (
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// reply is the subset of a frame response the client prints.
type reply struct {
	Error        string   `json:"error"`
	FrameNumber  int      `json:"frame_number"`
	State        string   `json:"state"`
	RepCount     int      `json:"rep_count"`
	CompletedRep bool     `json:"completed_rep"`
	RepScore     *float64 `json:"rep_score"`
	AvgFormScore *float64 `json:"avg_form_score"`
	Feedback     []string `json:"feedback"`
}

func main() {
	serverURL := flag.String("url", "ws://localhost:8000", "RepTrack server base URL (ws:// or wss://)")
	exercise := flag.String("exercise", "", "exercise to track (e.g. squat)")
	member := flag.String("member", "", "member ID (empty: server decides)")
	dir := flag.String("dir", "", "directory of JPEG frames, sent in name order")
	fps := flag.Float64("fps", 10, "frames per second to send (0: as fast as replies arrive)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("reptrack-stream", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *exercise == "" || *dir == "" {
		fmt.Fprintf(os.Stderr, "Usage: reptrack-stream -exercise <name> -dir <frames dir> [-url ws://host:port] [-member ID] [-fps N]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	frames, err := listFrames(*dir)
	if err != nil {
		log.Error("failed to list frames", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(frames) == 0 {
		log.Error("no JPEG frames found", "dir", *dir)
		os.Exit(1)
	}

	target, err := streamURL(*serverURL, *exercise, *member)
	if err != nil {
		log.Error("invalid server URL", "error", err)
		os.Exit(1)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.Dial(target, nil)
	if err != nil {
		log.Error("failed to connect", "url", target, "error", err)
		os.Exit(1)
	}
	defer ws.Close()
	log.Info("connected", "url", target, "frames", len(frames))

	var interval time.Duration
	if *fps > 0 {
		interval = time.Duration(float64(time.Second) / *fps)
	}

	var last reply
	for _, path := range frames {
		start := time.Now()
		data, err := os.ReadFile(path)
		if err != nil {
			log.Error("failed to read frame", "path", path, "error", err)
			os.Exit(1)
		}
		msg := map[string]string{"frame": base64.StdEncoding.EncodeToString(data)}
		if err := ws.WriteJSON(msg); err != nil {
			log.Error("send failed", "error", err)
			os.Exit(1)
		}

		var r reply
		if err := ws.ReadJSON(&r); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				log.Error("server closed stream", "code", ce.Code, "reason", ce.Text)
			} else {
				log.Error("receive failed", "error", err)
			}
			os.Exit(1)
		}
		if r.Error != "" {
			log.Warn("frame rejected", "path", filepath.Base(path), "error", r.Error)
			continue
		}
		if r.CompletedRep && r.RepScore != nil {
			fmt.Printf("rep %d  score %.1f  %s\n", r.RepCount, *r.RepScore, strings.Join(r.Feedback, "; "))
		}
		last = r

		if wait := interval - time.Since(start); wait > 0 {
			time.Sleep(wait)
		}
	}

	// A normal close lets the server persist the session.
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second)); err != nil {
		log.Warn("close failed", "error", err)
	}

	fmt.Printf("frames: %d  reps: %d  state: %s", last.FrameNumber, last.RepCount, last.State)
	if last.AvgFormScore != nil {
		fmt.Printf("  avg form: %.1f", *last.AvgFormScore)
	}
	fmt.Println()
}

// listFrames returns the .jpg/.jpeg files in dir sorted by name.
func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var frames []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
			frames = append(frames, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(frames)
	return frames, nil
}

// streamURL builds the exercise stream endpoint from a base URL.
func streamURL(base, exercise, member string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws/exercise/" + exercise
	if member != "" {
		u.RawQuery = url.Values{"member_id": {member}}.Encode()
	}
	return u.String(), nil
}
