package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config aggregates configuration for the SDK binaries.
type Config struct {
	Client Client
	Server Server
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	client, err := loadClient()
	if err != nil {
		return nil, err
	}

	server, err := loadServer()
	if err != nil {
		return nil, err
	}

	return &Config{Client: client, Server: server}, nil
}

// Client configures the widget's connection to the hosted chat backend.
type Client struct {
	// PublicKey identifies the embedding organization to the backend.
	PublicKey string
	// BaseURL is the REST endpoint root, e.g. "http://localhost:8080/api".
	BaseURL string
	// RealtimeURL is the websocket endpoint, e.g. "ws://localhost:8080/api/ws".
	RealtimeURL string
	// StorePath is the sqlite file holding the persisted session id.
	StorePath string
	// UserName is the display name attached to outbound realtime events.
	UserName string
	// ReconnectDelay is the fixed pause between realtime reconnect attempts.
	ReconnectDelay time.Duration
	// EscalationDelay is the pause before the synthetic "agent is on the way"
	// reply is appended after an escalation request.
	EscalationDelay time.Duration
}

func loadClient() (Client, error) {
	base := strings.TrimSpace(os.Getenv("PARLEY_BASE_URL"))
	if base == "" {
		base = "http://localhost:8080/api"
	}

	rt := strings.TrimSpace(os.Getenv("PARLEY_REALTIME_URL"))
	if rt == "" {
		rt = "ws://localhost:8080/api/ws"
	}

	storePath := strings.TrimSpace(os.Getenv("PARLEY_STORE_PATH"))
	if storePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		storePath = filepath.Join(dir, "parley", "session.db")
	}

	name := strings.TrimSpace(os.Getenv("PARLEY_USER_NAME"))
	if name == "" {
		name = "visitor"
	}

	reconnect, err := loadDuration("PARLEY_RECONNECT_DELAY", 3*time.Second)
	if err != nil {
		return Client{}, err
	}

	escalation, err := loadDuration("PARLEY_ESCALATION_DELAY", 2*time.Second)
	if err != nil {
		return Client{}, err
	}

	key := strings.TrimSpace(os.Getenv("PARLEY_PUBLIC_KEY"))
	if key == "" {
		// The devserver accepts any non-empty key by default.
		key = "pk-dev"
	}

	return Client{
		PublicKey:       key,
		BaseURL:         strings.TrimRight(base, "/"),
		RealtimeURL:     rt,
		StorePath:       storePath,
		UserName:        name,
		ReconnectDelay:  reconnect,
		EscalationDelay: escalation,
	}, nil
}

// Server configures the local devserver that emulates the hosted backend.
type Server struct {
	Addr string
	// PublicKeys lists the organization keys the devserver accepts; empty
	// means any key is accepted.
	PublicKeys []string
}

func loadServer() (Server, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, " ") {
		return Server{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	addr := port
	if !strings.Contains(port, ":") {
		addr = ":" + port
	}

	var keys []string
	if raw := strings.TrimSpace(os.Getenv("PARLEY_ACCEPTED_KEYS")); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}

	return Server{Addr: addr, PublicKeys: keys}, nil
}

func loadDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return d, nil
}
