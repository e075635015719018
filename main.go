package main

import "github.com/edgekit/facegate/cmd"

func main() {
	cmd.Execute()
}
