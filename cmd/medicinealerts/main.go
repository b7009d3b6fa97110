package main

import (
	"github.com/stroudgreenmedical/medicinealerts/cmd/cmd"
	"github.com/stroudgreenmedical/medicinealerts/internal/logger"
)

func main() {
	logger.Init()
	cmd.Execute()
}
