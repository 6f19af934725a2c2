package main

import (
	"github.com/Tinuki562/junior.guru/cmd/jgsync/commands"
	"github.com/Tinuki562/junior.guru/internal/components/cliutil"
)

func main() {
	commands.ExecuteContext(cliutil.SignalContext())
}
