package main

import "github.com/SpaceWJK/epic7-monitor/cmd"

func main() {
	cmd.Execute()
}
