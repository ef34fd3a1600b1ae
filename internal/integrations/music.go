package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"roomcraft/internal/logging"
)

// MusicClient is the music-control collaborator handed to capability
// snippets as their integration context. It satisfies
// capability.MusicContext. All controls degrade softly when the service is
// unreachable: snippets see errors, never panics.
type MusicClient struct {
	baseURL    string
	httpClient *http.Client

	mu           sync.RWMutex
	connected    bool
	currentTrack string
}

// NewMusicClient creates a music-control client. An empty baseURL yields a
// permanently disconnected client.
func NewMusicClient(baseURL string, timeout time.Duration) *MusicClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &MusicClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Connected reports whether the last Connect/Refresh succeeded.
func (m *MusicClient) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// CurrentTrack returns the track reported by the last Refresh.
func (m *MusicClient) CurrentTrack() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentTrack
}

type playerState struct {
	Track string `json:"track"`
	Error string `json:"error,omitempty"`
}

// Connect probes the service and marks the client connected on success.
func (m *MusicClient) Connect() error {
	if m.baseURL == "" {
		return ErrNotConfigured
	}
	if err := m.refreshState(); err != nil {
		logging.IntegrationsError("music connect failed: %v", err)
		return err
	}
	logging.Integrations("music service connected")
	return nil
}

// Refresh re-reads the player state.
func (m *MusicClient) Refresh() error {
	if !m.Connected() {
		return ErrNotConnected
	}
	return m.refreshState()
}

func (m *MusicClient) refreshState() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", m.baseURL+"/player", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.setDisconnected()
		return fmt.Errorf("player state request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		m.setDisconnected()
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		m.setDisconnected()
		return fmt.Errorf("player state returned status %d", resp.StatusCode)
	}

	var st playerState
	if err := json.Unmarshal(body, &st); err != nil {
		return fmt.Errorf("failed to parse player state: %w", err)
	}

	m.mu.Lock()
	m.connected = true
	m.currentTrack = st.Track
	m.mu.Unlock()
	return nil
}

func (m *MusicClient) setDisconnected() {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

// Play starts or resumes playback.
func (m *MusicClient) Play() error { return m.transport("play") }

// Pause pauses playback.
func (m *MusicClient) Pause() error { return m.transport("pause") }

// Next skips to the next track.
func (m *MusicClient) Next() error { return m.transport("next") }

// Previous returns to the previous track.
func (m *MusicClient) Previous() error { return m.transport("previous") }

func (m *MusicClient) transport(cmd string) error {
	if !m.Connected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", m.baseURL+"/player/"+cmd, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport %s failed: %w", cmd, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("transport %s returned status %d", cmd, resp.StatusCode)
	}
	logging.Integrations("music transport: %s", cmd)
	return nil
}
