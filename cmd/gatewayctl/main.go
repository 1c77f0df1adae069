// Command gatewayctl is the operator CLI for the inference gateway: it
// talks to the same SQLite store, Redis event bus, and Temporal namespace
// the api and worker processes use, for tasks that have no HTTP surface —
// chiefly minting the first API key for a workspace, since every /v1 route
// including POST /v1/api_keys sits behind APIKeyAuthMiddleware and so
// cannot bootstrap its own credential.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	root := &cobra.Command{
		Use:   "gatewayctl",
		Short: "Operate an inference gateway deployment out-of-band",
	}

	root.AddCommand(
		buildKeysCmd(),
		buildRunsCmd(),
		buildStreamCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("gatewayctl failed")
	}
}
