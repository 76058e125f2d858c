package main

import cmd "github.com/likaia/nginxpulse-exporter/cmd/main"

func main() {
	cmd.Run()
}
