// Command ethudp runs one side of an EthUDP tunnel: it bridges a local
// Ethernet source (a NIC or a TAP device) onto one or two UDP paths to a
// remote peer running the same daemon.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
