/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the lead distribution engine. The default command
  is "serve"; "distribute" and "close-cycle" run single operations against
  the same database.

COMMANDS:
  serve         HTTP API, follow-up scheduler, event publishing
  distribute    Preview (or confirm) a distribution from the terminal
  close-cycle   Archive production and reset it to zero

CONFIGURATION:
  Defaults < .env < $LEADS_CONFIG (YAML) < LEADS_* env vars < flags.
  See config/config.go.

EXAMPLES:
  # Run with file database
  ./server serve --db ./data/leads.db

  # Preview 40 PME and 25 PF leads
  ./server distribute --stock-a 40 --stock-b 25

  # Confirm it
  ./server distribute --stock-a 40 --stock-b 25 --confirm --by ana

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration layers
*/
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
