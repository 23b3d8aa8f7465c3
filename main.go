package main

import (
	"os"

	"github.com/Tyrannas/mlflow-client/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
