// Package yolopose extracts body landmarks from JPEG frames with a
// YOLOv8-pose ONNX model run through OpenCV's DNN module.
package yolopose

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/claude/reptrack/internal/pose"
)

// Config holds the model location and inference settings.
type Config struct {
	ModelPath   string
	Confidence  float32
	InputWidth  int
	InputHeight int
}

// Processor runs pose inference. One Processor is created per session.
type Processor struct {
	net    gocv.Net
	cfg    Config
	mu     sync.Mutex
	size   image.Point
	closed bool
}

// New loads the model.
func New(cfg Config) (*Processor, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("pose model: %w", err)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("loading pose model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Processor{
		net:  net,
		cfg:  cfg,
		size: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Factory returns a pose.Factory that loads a fresh model per session.
func Factory(cfg Config) pose.Factory {
	return func() (pose.Processor, error) {
		return New(cfg)
	}
}

// Extract decodes a JPEG frame and returns the most confident person's landmarks.
func (p *Processor) Extract(frame []byte) (pose.Landmarks, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errors.New("pose processor closed")
	}

	img, err := gocv.IMDecode(frame, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, errors.New("empty image")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, p.size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	p.net.SetInput(blob, "")
	out := p.net.Forward("")
	defer out.Close()

	// Output shape: [1, 56, anchors].
	dims := out.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected pose output rank %d", len(dims))
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading pose output: %w", err)
	}

	return pose.DecodeYOLOPose(data, dims[1], dims[2], p.cfg.Confidence, p.cfg.InputWidth, p.cfg.InputHeight)
}

// Close releases the network.
func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.net.Close()
}
