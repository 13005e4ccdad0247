/*
Copyright 2024 The Entitynet Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// entitysyncd is a reference binary that wires pkg/connection end to end
// over a trivial in-process loopback transport, standing in for a real UDP
// socket, so the module has something to run without pulling in any actual
// networking stack. It is not part of the module's public API.
package main

import (
	"encoding/gob"
	"flag"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/entitynet/replicore/internal/config"
	"github.com/entitynet/replicore/pkg/action"
	"github.com/entitynet/replicore/pkg/connection"
	"github.com/entitynet/replicore/pkg/telemetry"
)

// loopbackTransport delivers frames to a peer's inbound channel instead of
// a socket - the in-process stand-in §6 calls for. Every sent frame is
// tagged with a uuid purely for log correlation between the two sides of
// the demo; the uuid never reaches the wire format or the core itself.
type loopbackTransport struct {
	log   logr.Logger
	peer  chan<- []byte
	index uint32
}

func newLoopbackTransport(log logr.Logger, peer chan<- []byte) *loopbackTransport {
	return &loopbackTransport{log: log, peer: peer}
}

func (t *loopbackTransport) Send(frame []byte) (uint32, error) {
	idx := atomic.AddUint32(&t.index, 1) - 1
	t.log.V(1).Info("sending frame", "packetIndex", idx, "correlationID", uuid.NewString(), "bytes", len(frame))
	t.peer <- frame
	return idx, nil
}

// gobCodec is the trivial bit-level codec §6 calls for in place of a real
// packed-bit encoding; it stands in behind action.Codec purely so the demo
// can round-trip a action.WireMessage, never appearing in the core itself.
type gobCodec struct{}

func (gobCodec) EncodeAction(w io.Writer, msg action.WireMessage) error {
	if err := gob.NewEncoder(w).Encode(msg); err != nil {
		return fmt.Errorf("entitysyncd: gob-encoding action: %w", err)
	}
	return nil
}

func (gobCodec) DecodeAction(r io.Reader) (action.WireMessage, error) {
	var msg action.WireMessage
	if err := gob.NewDecoder(r).Decode(&msg); err != nil {
		return action.WireMessage{}, fmt.Errorf("entitysyncd: gob-decoding action: %w", err)
	}
	return msg, nil
}

func main() {
	cfg := config.Default()
	cfg.BindFlags(pflag.CommandLine)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "entitysyncd: invalid --log-level %q: %v\n", cfg.LogLevel, err)
		os.Exit(1)
	}
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapLog, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "entitysyncd: building logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLog.Sync() //nolint:errcheck
	log := zapr.NewLogger(zapLog)

	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)

	runDemo(log, metrics, cfg)
}

// runDemo spawns and publishes one entity on the "server" side of an
// in-process connection pair and ticks both sides for two seconds (or
// until a tick fails or either side closes), logging every event observed
// along the way. It triggers no migration. It is a smoke test shaped as a
// program, not a production server loop.
func runDemo(log logr.Logger, metrics *telemetry.Metrics, cfg config.Config) {
	serverToClient := make(chan []byte, 64)
	clientToServer := make(chan []byte, 64)

	server := connection.New[string](newLoopbackTransport(log.WithName("server"), serverToClient), gobCodec{},
		log.WithName("server"), metrics)
	client := connection.New[string](newLoopbackTransport(log.WithName("client"), clientToServer), gobCodec{},
		log.WithName("client"), metrics)

	local, err := server.SpawnLocal("player-1")
	if err != nil {
		log.Error(err, "spawning demo entity")
		os.Exit(1)
	}
	if err := server.EnqueueCommand("player-1", action.WireMessage{Tag: action.TagPublishEntity}); err != nil {
		log.Error(err, "enqueuing publish")
		os.Exit(1)
	}

	stop := make(chan struct{})
	go pumpFrames(log.WithName("client-reader"), client, serverToClient, stop)
	go pumpFrames(log.WithName("server-reader"), server, clientToServer, stop)

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case now := <-ticker.C:
			if err := server.Tick(now); err != nil {
				log.Error(err, "server tick")
				close(stop)
				return
			}
			if err := client.Tick(now); err != nil {
				log.Error(err, "client tick")
				close(stop)
				return
			}
			if server.Closed() || client.Closed() {
				close(stop)
				return
			}
		case <-deadline:
			log.Info("demo complete", "entity", "player-1", "finalLocal", local)
			close(stop)
			return
		}
	}
}

// pumpFrames relays raw frames arriving on in to conn.HandleFrame, logging
// every resulting application event, until stop closes. A real caller would
// call RegisterSpawn here to mint its own GlobalEntity for a freshly
// observed remote entity (§4.2 step 2 says that allocation is the
// application's call, not the core's); this demo never calls it, so the
// client side's events for the server's entity carry the zero-value
// handle and it only logs what it observes.
func pumpFrames(log logr.Logger, conn interface {
	HandleFrame(frame []byte) ([]action.Event[string], error)
}, in <-chan []byte, stop <-chan struct{}) {
	for {
		select {
		case frame := <-in:
			events, err := conn.HandleFrame(frame)
			if err != nil {
				log.Error(err, "handling inbound frame")
				return
			}
			for _, ev := range events {
				log.Info("observed event", "kind", ev.Kind, "entity", ev.Entity, "component", ev.Component)
			}
		case <-stop:
			return
		}
	}
}
