package main

import (
	"github.com/medledger/ledger/app/tooling/medcli/cmd"
)

func main() {
	cmd.Execute()
}
