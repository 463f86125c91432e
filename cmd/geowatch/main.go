// geowatch validates device locations for a mobile web host.
package main

import "github.com/ppiankov/geowatch/internal/cli"

func main() {
	cli.Execute()
}
