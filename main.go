// Command placecrawl resolves place websites from a catalog; see cmd for the subcommands.
package main

import "github.com/allofdaniel/placecrawl/cmd"

func main() {
	cmd.Execute()
}
