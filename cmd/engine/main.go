// Command engine runs the document-engine process: it owns one
// pkg/engine.Engine and speaks the pkg/wire request/reply protocol to
// whichever host process started it, exactly as spec.md §6 describes.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"github.com/kasuganosora/sheetengine/pkg/config"
	"github.com/kasuganosora/sheetengine/pkg/engine"
	"github.com/kasuganosora/sheetengine/pkg/mcpapi"
	"github.com/kasuganosora/sheetengine/pkg/wire"
)

func main() {
	cfg := config.LoadConfigOrDefault()

	// No Compiler/DefaultValuer is wired here: the engine deliberately
	// implements no general expression language (see pkg/engine's Compiler
	// seam), so a real deployment supplies its own main that constructs
	// engine.New with a host-specific formula compiler. This binary still
	// runs correctly for documents with no formula/trigger/default-value
	// columns.
	eng := engine.New(cfg, nil, nil)

	if cfg.MCP.Enabled {
		mcpSrv := mcpapi.NewServer(eng, &cfg.MCP)
		go func() {
			if err := mcpSrv.Start(); err != nil {
				log.Printf("mcpapi server stopped: %v", err)
			}
		}()
	}

	ctx := context.Background()
	if err := run(ctx, cfg, eng); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, eng *engine.Engine) error {
	switch cfg.Transport.Network {
	case "stdio", "":
		return serveConn(os.Stdin, os.Stdout, eng)
	case "unix", "tcp":
		listener, err := net.Listen(cfg.Transport.Network, cfg.Transport.Address)
		if err != nil {
			return fmt.Errorf("cmd/engine: listen failed: %w", err)
		}
		defer listener.Close()
		log.Printf("cmd/engine: listening on %s %s", cfg.Transport.Network, cfg.Transport.Address)
		for {
			conn, err := listener.Accept()
			if err != nil {
				return err
			}
			go func() {
				defer conn.Close()
				if err := serveConn(conn, conn, eng); err != nil && err != io.EOF {
					log.Printf("cmd/engine: connection error: %v", err)
				}
			}()
		}
	default:
		return fmt.Errorf("cmd/engine: unsupported transport %q", cfg.Transport.Network)
	}
}

// serveConn runs the single-threaded request/reply loop (spec.md §5: at most
// one call in flight at a time) reading CALL frames from r and writing a
// DATA or EXC frame back to w for each, until r is exhausted or a frame
// fails to parse.
func serveConn(r io.Reader, w io.Writer, eng *engine.Engine) error {
	var writeMu sync.Mutex
	for {
		code, body, err := wire.ReadMessage(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("cmd/engine: reading request: %w", err)
		}
		if code != wire.Call {
			continue
		}
		name, args, err := wire.ParseCall(body)
		if err != nil {
			writeExc(&writeMu, w, "InvalidRequest", err.Error())
			continue
		}

		result, callErr := eng.Dispatch(name, args)
		if callErr != nil {
			kind, msg := engine.ClassifyError(callErr)
			writeExc(&writeMu, w, kind, msg)
			continue
		}

		writeMu.Lock()
		werr := wire.WriteMessage(w, wire.Data, result)
		writeMu.Unlock()
		if werr != nil {
			return fmt.Errorf("cmd/engine: writing reply: %w", werr)
		}
	}
}

func writeExc(mu *sync.Mutex, w io.Writer, kind, message string) {
	mu.Lock()
	defer mu.Unlock()
	if err := wire.WriteMessage(w, wire.Exc, wire.ExcBody(kind, message)); err != nil {
		log.Printf("cmd/engine: failed writing exc frame: %v", err)
	}
}
