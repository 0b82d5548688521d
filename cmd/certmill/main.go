package main

import "github.com/quaypoint/certmill/cmd/certmill/cmd"

func main() {
	cmd.Execute()
}
