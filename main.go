package main

import "github.com/diagno/callsignal/cmd"

func main() {
	cmd.Execute()
}
