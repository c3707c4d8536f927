// Command toolsrv is a minimal MCP stdio tool server used to exercise the
// bridge end to end: it exposes filesystem listing/reading and a terminal
// tool over newline-delimited JSON-RPC on stdin/stdout.
//
//	mcp-bridge -p 8095 -- toolsrv --base-url file:///tmp
package main

import (
	"context"
	"log"
	"os"

	"github.com/jessevdk/go-flags"
)

type options struct {
	BaseURL string `short:"b" long:"base-url" description:"base URL the file tools operate on" default:"file://localhost/"`
}

func main() {
	opts := &options{}
	if _, err := flags.ParseArgs(opts, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	server, err := newServer(ctx, opts.BaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := server.serve(ctx, os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}
