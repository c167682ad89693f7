package main

import "personal-ledger/cmd"

func main() {
	cmd.Execute()
}
