// This program is the wallet command line tool: key generation, address
// lookup, stake queries, and transaction submission against a node.
package main

import (
	"github.com/bowlofstew/credo-core-node/app/cli/cmd"
)

func main() {
	cmd.Execute()
}
