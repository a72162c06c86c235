package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_fusion/internal/config"
	"github.com/relabs-tech/imu_fusion/internal/orientation"
)

// poseHub keeps the latest fused pose and fans updates out to websocket clients.
type poseHub struct {
	mu       sync.RWMutex
	lastPose orientation.Pose
	havePose bool
	clients  map[chan orientation.Pose]struct{}
}

func newPoseHub() *poseHub {
	return &poseHub{clients: make(map[chan orientation.Pose]struct{})}
}

func (h *poseHub) publish(p orientation.Pose) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastPose = p
	h.havePose = true
	for ch := range h.clients {
		// slow clients miss intermediate poses
		select {
		case ch <- p:
		default:
		}
	}
}

func (h *poseHub) latest() (orientation.Pose, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastPose, h.havePose
}

func (h *poseHub) subscribe() (<-chan orientation.Pose, func()) {
	ch := make(chan orientation.Pose, 8)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}
}

func (h *poseHub) handleOrientation(w http.ResponseWriter, r *http.Request) {
	pose, ok := h.latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(pose); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const wsWriteWait = 2 * time.Second

// handleStream sends the latest pose on connect, then every update.
func (h *poseHub) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(p orientation.Pose) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(p); err != nil {
			log.Debugf("web: websocket %s: %v", r.RemoteAddr, err)
			return false
		}
		return true
	}

	if p, ok := h.latest(); ok && !send(p) {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case p := <-updates:
			if !send(p) {
				return
			}
		}
	}
}

func newWebMux(h *poseHub, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/orientation", h.handleOrientation)
	mux.HandleFunc("/ws", h.handleStream)
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

// RunWeb serves the latest fused pose over HTTP and a websocket stream until
// ctx is done.
func RunWeb(ctx context.Context, cfg *config.Config) error {
	hub := newPoseHub()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	if err := subscribeJSON(client, "web", cfg.TopicPoseFused, hub.publish); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           newWebMux(hub, "web"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("web server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Println("web: shut down")
	return nil
}
