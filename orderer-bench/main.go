// Package main implements the block orderer benchmark executable.
package main

import (
	"github.com/oasisprotocol/block-orderer/orderer-bench/cmd"
)

func main() {
	cmd.Execute()
}
