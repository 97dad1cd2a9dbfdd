package main

import "go-modpanel/cmd/modpanel/cmd"

func main() {
	cmd.Execute()
}
