// Command portal runs the AC Transporte web portal: the offline-capable
// frontend gateway, the route broadcast API, and the live-route stream.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
