package main

import (
	"github.com/flow-db/flowload/cmd/flowload/cmd"
	"github.com/flow-db/flowload/internal/common/logging"
)

func main() {
	logging.ConfigureCliLogging()
	cmd.Execute()
}
