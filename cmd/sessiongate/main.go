package main

import "github.com/guardianentry/sessiongate/cmd/sessiongate/cmd"

func main() {
	cmd.Execute()
}
