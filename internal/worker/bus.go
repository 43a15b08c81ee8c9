package worker

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// busReadyTimeout bounds how long StartBus waits for the server to accept
// connections.
const busReadyTimeout = 5 * time.Second

// StartBus runs an embedded NATS server bound to host:port. A port of -1
// picks a free one; the chosen URL is available from ClientURL.
func StartBus(host string, port int) (*natsserver.Server, error) {
	opts := &natsserver.Options{
		ServerName: "agentnotify-worker",
		Host:       host,
		Port:       port,
		NoLog:      true,
		NoSigs:     true,
	}

	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("creating message bus: %w", err)
	}

	go srv.Start()

	if !srv.ReadyForConnections(busReadyTimeout) {
		srv.Shutdown()
		return nil, fmt.Errorf("message bus on %s:%d not ready after %s", host, port, busReadyTimeout)
	}
	return srv, nil
}
