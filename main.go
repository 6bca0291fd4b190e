package main

import "github.com/racealert/race-alert/cmd"

func main() {
	cmd.Execute()
}
