// Command refresher probes a fleet of AI accounts for usage and rate-limit
// state and publishes the normalized results to the collector.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
