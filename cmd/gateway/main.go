// Command gateway is the governance gateway's CLI entry point.
package main

import "github.com/Sentinel-Gate/Sentinelgate/cmd/gateway/cmd"

func main() {
	cmd.Execute()
}
