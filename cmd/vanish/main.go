package main

import "github.com/MeKo-Tech/vanish/cmd/vanish/cmd"

func main() {
	cmd.Execute()
}
