// Command mcp-bridge exposes an MCP stdio tool server over HTTP/OpenAPI.
//
// Usage:
//
//	mcp-bridge [flags] -- <tool-server-command> [args...]
//
// The bridge spawns the tool server, performs the MCP handshake, discovers
// its tools and serves one POST route per tool plus /openapi.json and
// /status. The process exits 0 on graceful shutdown and non-zero when the
// tool server exhausts its restart budget.
package main

import (
	"log"
	"os"

	"github.com/viant/mcp-bridge"
)

func main() {
	if err := bridge.Run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
