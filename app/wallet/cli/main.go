package main

import "github.com/minervachain/minerva/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
