// Package main provides the CLI for the HexMesh geospatial data mesh.
package main

import (
	"os"

	"github.com/hexmesh-labs/hexmesh/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
