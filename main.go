package main

import "github.com/jonandersen/etrade-cli/cmd"

var version = "dev"

func main() {
	cmd.Version = version
	cmd.Execute()
}
