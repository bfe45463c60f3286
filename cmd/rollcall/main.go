package main

import "github.com/BrandonDHaskell/Rollcall/internal/cli"

func main() {
	cli.Execute()
}
