package main

import (
	"github.com/ssargent/cabinetdb/cmd/cabinet/cmd"
)

func main() {
	cmd.Execute()
}
