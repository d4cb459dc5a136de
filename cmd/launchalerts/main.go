package main

import "launch-alerts/internal/cli"

func main() {
	cli.Execute()
}
