package main

import "github.com/duetlabs/pairsync/cmd"

func main() {
	cmd.Execute()
}
