package main

import "github.com/MeKo-Tech/kycscan/cmd/kycscan/cmd"

func main() {
	cmd.Execute()
}
