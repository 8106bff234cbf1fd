package output

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/wincap/internal/frame"
	"github.com/bryanchriswhite/wincap/internal/logger"
)

// FrameSource hands out captured frames, each at most once
type FrameSource interface {
	GetFrame() (*frame.Buffer, bool)
}

// MJPEGStream broadcasts the captured window as Motion JPEG over HTTP so it
// can be watched in a browser tab.
type MJPEGStream struct {
	encoder JPEGEncoder

	// Connected clients
	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	// Stats
	statsMu    sync.RWMutex
	frameCount uint64
	lastUpdate time.Time
}

// NewMJPEGStream creates a stream encoding at quality, downscaled to
// maxWidth when it is positive.
func NewMJPEGStream(quality, maxWidth int) *MJPEGStream {
	return &MJPEGStream{
		encoder: JPEGEncoder{Quality: quality, MaxWidth: maxWidth},
		clients: make(map[chan []byte]struct{}),
	}
}

// Run pulls frames from src every interval and broadcasts them until ctx
// ends. Frames are only taken while a client is watching, so an idle stream
// does not consume frames meant for other readers.
func (m *MJPEGStream) Run(ctx context.Context, src FrameSource, interval time.Duration) {
	log := logger.WithComponent("mjpeg")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer m.closeClients()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if m.ClientCount() == 0 {
			continue
		}
		b, ok := src.GetFrame()
		if !ok {
			continue
		}
		if err := m.WriteFrame(b); err != nil {
			log.Warn().Err(err).Msg("Failed to broadcast frame")
		}
	}
}

// WriteFrame encodes b once and sends it to every connected client
func (m *MJPEGStream) WriteFrame(b *frame.Buffer) error {
	buf := new(bytes.Buffer)
	if err := m.encoder.Encode(buf, b); err != nil {
		return err
	}
	jpegData := buf.Bytes()

	m.statsMu.Lock()
	m.frameCount++
	m.lastUpdate = time.Now()
	m.statsMu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// ClientCount returns the number of connected viewers
func (m *MJPEGStream) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// FrameCount returns the number of frames broadcast so far
func (m *MJPEGStream) FrameCount() uint64 {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	return m.frameCount
}

func (m *MJPEGStream) closeClients() {
	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()
}

// Handler serves the multipart stream. Mount at /stream.
func (m *MJPEGStream) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.WithComponent("mjpeg")

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log.Info().Int("clients", clientCount).Msg("MJPEG client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("MJPEG client disconnected")
		}()

		for {
			var jpegData []byte
			select {
			case <-r.Context().Done():
				return
			case data, ok := <-frameChan:
				if !ok {
					return
				}
				jpegData = data
			}

			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
				return
			}
			if _, err := w.Write(jpegData); err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}
